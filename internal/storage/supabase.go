package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"github.com/sjawhar/codereflex/internal/interview"
	"github.com/sjawhar/codereflex/internal/submission"
)

const interviewsTable = "interviews"

type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
}

// SupabaseStore keeps interviews in the hosted Postgres "interviews" table.
type SupabaseStore struct {
	client *supabase.Client
}

func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	if strings.TrimSpace(cfg.URL) == "" || strings.TrimSpace(cfg.ServiceRoleKey) == "" {
		return nil, errors.New("supabase url and service role key are required")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

func (s *SupabaseStore) Close() error { return nil }

func (s *SupabaseStore) CreateInterview(_ context.Context, p interview.Profile) error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("interview id is required")
	}
	if _, _, err := s.client.From(interviewsTable).Insert(rowFromProfile(p), false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("create interview %s: %w", p.ID, err)
	}
	return nil
}

func (s *SupabaseStore) GetInterview(_ context.Context, id string) (Interview, error) {
	body, _, err := s.client.From(interviewsTable).Select("*", "", false).Eq("id", id).Execute()
	if err != nil {
		return Interview{}, fmt.Errorf("get interview %s: %w", id, err)
	}

	var rows []interviewRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return Interview{}, fmt.Errorf("decode interview %s: %w", id, err)
	}
	if len(rows) == 0 {
		return Interview{}, fmt.Errorf("get interview %s: %w", id, ErrNotFound)
	}
	return rows[0].toInterview()
}

func (s *SupabaseStore) ListInterviews(_ context.Context) ([]Interview, error) {
	body, _, err := s.client.From(interviewsTable).
		Select("*", "", false).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}

	var rows []interviewRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode interviews: %w", err)
	}
	out := make([]Interview, 0, len(rows))
	for _, r := range rows {
		iv, err := r.toInterview()
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, nil
}

func (s *SupabaseStore) MarkStarted(_ context.Context, id string, at time.Time) error {
	update := map[string]any{"started_at": at.UTC(), "status": StatusActive}
	return s.update(id, update)
}

func (s *SupabaseStore) SaveResult(_ context.Context, result submission.Result) error {
	u, err := newResultUpdate(result)
	if err != nil {
		return err
	}
	if err := s.update(result.InterviewID, u); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// update patches one row and reports ErrNotFound when nothing matched.
func (s *SupabaseStore) update(id string, value any) error {
	body, _, err := s.client.From(interviewsTable).Update(value, "representation", "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("update interview %s: %w", id, err)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err == nil && len(rows) == 0 {
		return fmt.Errorf("update interview %s: %w", id, ErrNotFound)
	}
	return nil
}
