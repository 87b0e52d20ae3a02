package assignment

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"bilingdash/internal/linking"
	"bilingdash/internal/question"
	"bilingdash/internal/review"
	"bilingdash/internal/testutil"
)

type staticPairs []review.PairSummary

func (s staticPairs) ListPairs(ctx context.Context, examName string) ([]review.PairSummary, error) {
	return s, nil
}

func seedAssignedPair(t *testing.T, ctx context.Context, dbConn *sql.DB) (*Service, testutil.SeededPaper, testutil.SeededPaper, int64) {
	t.Helper()
	en, hi := testutil.SeedPair(t, dbConn,
		[]testutil.SeedQuestion{
			{Section: "General", SourceNo: "Q.1", Body: "One", Options: testutil.FourOptions("e")},
			{Section: "General", SourceNo: "Q.2", Body: "Two", Options: testutil.FourOptions("e")},
		},
		[]testutil.SeedQuestion{
			{Section: "सामान्य", SourceNo: "प्र.1", Body: "एक", Options: testutil.FourOptions("h")},
			{Section: "सामान्य", SourceNo: "प्र.2", Body: "दो", Options: testutil.FourOptions("h")},
		},
	)
	linker := linking.NewService(dbConn, question.NewService(dbConn), nil)
	if _, err := linker.LinkPair(ctx, en.Paper.ID, hi.Paper.ID); err != nil {
		t.Fatalf("link pair: %v", err)
	}

	reviewerID := testutil.SeedReviewer(t, dbConn, "reviewer")
	var email string
	if err := dbConn.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, reviewerID).Scan(&email); err != nil {
		t.Fatalf("load reviewer email: %v", err)
	}

	pairs := staticPairs{{EnglishPaperID: en.Paper.ID, HindiPaperID: hi.Paper.ID}}
	svc := NewService(dbConn, pairs, Config{ReviewerEmails: []string{email}, BulkTimeout: 20 * time.Second})
	if _, err := svc.Assign(ctx, AssignInput{}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	return svc, en, hi, reviewerID
}

func TestAssign_DBIntegration_Idempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	dbConn := testutil.OpenIntegrationDB(t)
	svc, en, _, reviewerID := seedAssignedPair(t, ctx, dbConn)

	rep, err := svc.Assign(ctx, AssignInput{})
	if err != nil {
		t.Fatalf("second assign: %v", err)
	}
	if rep.Cleared != 2 || rep.Assigned != 2 {
		t.Fatalf("expected rerun to replace 2 assignments, got %+v", rep)
	}

	items, err := svc.ListReviewerAssignments(ctx, reviewerID)
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(items))
	}
	if items[0].PaperID != en.Paper.ID || items[0].TotalLinks != 2 {
		t.Fatalf("expected english assignment first with 2 links, got %+v", items[0])
	}
}

func TestBulkComplete_DBIntegration_Idempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	dbConn := testutil.OpenIntegrationDB(t)
	svc, _, hi, _ := seedAssignedPair(t, ctx, dbConn)

	first, err := svc.BulkComplete(ctx, hi.Paper.ID)
	if err != nil {
		t.Fatalf("bulk complete: %v", err)
	}
	if first.LinksUpdated != 2 || first.AssignmentsCompleted != 2 {
		t.Fatalf("unexpected first result: %+v", first)
	}

	second, err := svc.BulkComplete(ctx, hi.Paper.ID)
	if err != nil {
		t.Fatalf("bulk complete rerun: %v", err)
	}
	if second.LinksUpdated != 0 || second.AssignmentsCompleted != 0 {
		t.Fatalf("expected no-op rerun, got %+v", second)
	}
}

func TestBulkComplete_DBIntegration_RollsBackOnAssignmentFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	dbConn := testutil.OpenIntegrationDB(t)
	svc, en, _, _ := seedAssignedPair(t, ctx, dbConn)

	fn := "itest_fail_assignment_" + strings.ReplaceAll(en.Paper.ID.String(), "-", "")
	if _, err := dbConn.ExecContext(ctx, `
		CREATE FUNCTION `+fn+`() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'forced assignment failure';
		END;
		$$ LANGUAGE plpgsql
	`); err != nil {
		t.Fatalf("create trigger function: %v", err)
	}
	if _, err := dbConn.ExecContext(ctx, `
		CREATE TRIGGER `+fn+` BEFORE UPDATE ON review_assignments
		FOR EACH ROW WHEN (NEW.paper_id = '`+en.Paper.ID.String()+`'::uuid)
		EXECUTE FUNCTION `+fn+`()
	`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	t.Cleanup(func() {
		_, _ = dbConn.ExecContext(context.Background(), `DROP TRIGGER IF EXISTS `+fn+` ON review_assignments`)
		_, _ = dbConn.ExecContext(context.Background(), `DROP FUNCTION IF EXISTS `+fn+`()`)
	})

	if _, err := svc.BulkComplete(ctx, en.Paper.ID); err == nil {
		t.Fatalf("expected forced failure")
	}

	var corrected int
	if err := dbConn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM question_links
		WHERE paper_id_english = $1 AND status = 'MANUALLY_CORRECTED'
	`, en.Paper.ID).Scan(&corrected); err != nil {
		t.Fatalf("count links: %v", err)
	}
	if corrected != 0 {
		t.Fatalf("expected link updates rolled back, got %d corrected", corrected)
	}
}
