package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-books-must-balance/internal/migration"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

func testPlan() *model.MigrationPlan {
	return &model.MigrationPlan{
		ID:            "plan-1",
		OwnerID:       "u1",
		TargetGroupID: model.DefaultGroupID,
		Found:         3,
		Candidates: []model.RawRecord{
			{ID: "l1", Location: model.LocationLegacy, Fields: map[string]any{
				"userId": "u1", "value": "12.30", "type": "despesa", "category": "Food",
				"date": "2024-03-02", "description": "market",
			}},
			{ID: "l2", Location: model.LocationLegacy, Fields: map[string]any{"userId": "u1"}},
		},
		AlreadyMigrated: 1,
		Invalid:         1,
	}
}

func TestConsentPrompter_Ask(t *testing.T) {
	tests := []struct {
		wantErr  error
		name     string
		input    string
		want     migration.Decision
		invalids int
	}{
		{name: "migrate", input: "m\n", want: migration.DecisionProceed},
		{name: "never", input: "N\n", want: migration.DecisionDecline},
		{name: "later", input: "l\n", want: migration.DecisionDecline, wantErr: ErrConsentDeferred},
		{name: "retries invalid choice", input: "x\n\nm\n", want: migration.DecisionProceed, invalids: 2},
		{name: "input ends", input: "", want: migration.DecisionDecline, wantErr: ErrInputTerminated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewConsentPrompter(strings.NewReader(tt.input), &out)

			got, err := p.Ask(context.Background(), testPlan())

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Legacy transactions found")
			assert.Equal(t, tt.invalids, strings.Count(out.String(), "Invalid choice"))
		})
	}
}

func TestConsentPrompter_Cancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()

	p := NewConsentPrompter(pr, io.Discard)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Ask(ctx, testPlan())
	assert.ErrorIs(t, err, ErrInputCancelled)
}

func TestAutoConsent(t *testing.T) {
	d, err := AutoConsent(migration.DecisionProceed)(context.Background(), testPlan())
	require.NoError(t, err)
	assert.Equal(t, migration.DecisionProceed, d)
}
