package interview

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Interview types, difficulties and personas accepted when an interview is
// created.
var (
	InterviewTypes = []string{"DSA", "HR", "Behavioral", "System Design", "Full Stack", "Mixed"}
	Difficulties   = []string{"Easy", "Medium", "Hard"}
	Personas       = []string{"Friendly Dev", "Strict HR", "Calm Manager", "Fast-Paced Tech Lead"}
)

const (
	MinDurationMinutes = 5
	MaxDurationMinutes = 60
)

// Profile is the configuration record a candidate fills in before the
// interview starts.
type Profile struct {
	ID              string    `json:"id"`
	Role            string    `json:"job_role"`
	Company         string    `json:"company_name"`
	InterviewType   string    `json:"interview_type"`
	Difficulty      string    `json:"difficulty_level"`
	DurationMinutes int       `json:"duration"`
	Persona         string    `json:"interviewer_personality"`
	FocusAreas      string    `json:"custom_focus_areas,omitempty"`
	JobDescription  string    `json:"job_description,omitempty"`
	ResumeText      string    `json:"resume_text,omitempty"`
	EnableWebcam    bool      `json:"enable_webcam"`
	Voice           string    `json:"voice,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func (p Profile) Duration() time.Duration {
	return time.Duration(p.DurationMinutes) * time.Minute
}

// Validate reports every problem with the profile at once.
func (p Profile) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Role) == "" {
		errs = append(errs, errors.New("job role is required"))
	}
	if strings.TrimSpace(p.Company) == "" {
		errs = append(errs, errors.New("company name is required"))
	}
	if !oneOf(p.InterviewType, InterviewTypes) {
		errs = append(errs, fmt.Errorf("interview type must be one of %s", strings.Join(InterviewTypes, ", ")))
	}
	if !oneOf(p.Difficulty, Difficulties) {
		errs = append(errs, fmt.Errorf("difficulty level must be one of %s", strings.Join(Difficulties, ", ")))
	}
	if !oneOf(p.Persona, Personas) {
		errs = append(errs, fmt.Errorf("interviewer personality must be one of %s", strings.Join(Personas, ", ")))
	}
	if p.DurationMinutes < MinDurationMinutes || p.DurationMinutes > MaxDurationMinutes {
		errs = append(errs, fmt.Errorf("duration must be between %d and %d minutes", MinDurationMinutes, MaxDurationMinutes))
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// CodeSubmission records code the candidate submitted and the interviewer
// question it answered.
type CodeSubmission struct {
	Timestamp time.Time `json:"timestamp"`
	Code      string    `json:"code"`
	Question  string    `json:"question"`
}
