// Command bilingdash-admin runs one-shot maintenance jobs against the
// review database: schema migration, linking, assignment and reporting.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"bilingdash/internal/app"
	"bilingdash/internal/assignment"
	"bilingdash/internal/auth"
	internaldb "bilingdash/internal/db"
	"bilingdash/internal/linking"
	"bilingdash/internal/question"
	"bilingdash/internal/review"

	"github.com/google/uuid"
)

const usage = `usage: bilingdash-admin <command> [flags]

commands:
  migrate                               apply the embedded schema
  link -paper ID                        link a paper with its counterpart
  link -english ID -hindi ID            link an explicit pair
  assign [-exam NAME] [-reviewers a,b]  replace review assignments round robin
  report -out FILE.xlsx                 export reviewer progress
  create-reviewer -email E -name N -password P [-admin]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	dbConn, err := internaldb.OpenPostgres(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatalf("database error: %v", err)
	}
	defer dbConn.Close()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "migrate":
		err = internaldb.Migrate(ctx, dbConn)
		if err == nil {
			log.Printf("schema applied")
		}
	case "link":
		err = runLink(ctx, cfg, dbConn, args)
	case "assign":
		err = runAssign(ctx, cfg, dbConn, args)
	case "report":
		err = runReport(ctx, cfg, dbConn, args)
	case "create-reviewer":
		err = runCreateReviewer(ctx, dbConn, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

func runLink(ctx context.Context, cfg app.Config, db *sql.DB, args []string) error {
	fs := flag.NewFlagSet("link", flag.ExitOnError)
	paper := fs.String("paper", "", "paper id; its counterpart is resolved by exam, date and shift")
	english := fs.String("english", "", "english paper id")
	hindi := fs.String("hindi", "", "hindi paper id")
	_ = fs.Parse(args)

	svc := linking.NewService(db, question.NewService(db), cfg.SectionOverrides)

	var (
		rep *linking.LinkReport
		err error
	)
	switch {
	case *paper != "":
		id, perr := uuid.Parse(*paper)
		if perr != nil {
			return fmt.Errorf("invalid -paper: %w", perr)
		}
		rep, err = svc.LinkPaper(ctx, id)
	case *english != "" && *hindi != "":
		en, perr := uuid.Parse(*english)
		if perr != nil {
			return fmt.Errorf("invalid -english: %w", perr)
		}
		hi, perr := uuid.Parse(*hindi)
		if perr != nil {
			return fmt.Errorf("invalid -hindi: %w", perr)
		}
		rep, err = svc.LinkPair(ctx, en, hi)
	default:
		return fmt.Errorf("pass -paper or both -english and -hindi")
	}
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func runAssign(ctx context.Context, cfg app.Config, db *sql.DB, args []string) error {
	fs := flag.NewFlagSet("assign", flag.ExitOnError)
	exam := fs.String("exam", "", "only pairs whose exam name matches")
	reviewers := fs.String("reviewers", "", "comma separated reviewer emails; default is the configured roster")
	_ = fs.Parse(args)

	svc := newAssignmentService(cfg, db)
	in := assignment.AssignInput{ExamName: *exam}
	if *reviewers != "" {
		in.ReviewerEmails = strings.Split(*reviewers, ",")
	}
	rep, err := svc.Assign(ctx, in)
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func runReport(ctx context.Context, cfg app.Config, db *sql.DB, args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	out := fs.String("out", "review-progress.xlsx", "output workbook path")
	_ = fs.Parse(args)

	raw, err := newAssignmentService(cfg, db).ExportProgressExcel(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, raw, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	log.Printf("report written to %s (%d bytes)", *out, len(raw))
	return nil
}

func runCreateReviewer(ctx context.Context, db *sql.DB, args []string) error {
	fs := flag.NewFlagSet("create-reviewer", flag.ExitOnError)
	email := fs.String("email", "", "login email")
	name := fs.String("name", "", "display name")
	password := fs.String("password", "", "initial password")
	admin := fs.Bool("admin", false, "grant the admin role")
	_ = fs.Parse(args)

	role := auth.RoleReviewer
	if *admin {
		role = auth.RoleAdmin
	}
	user, err := auth.NewService(db, auth.ServiceConfig{}).CreateReviewer(ctx, auth.CreateReviewerInput{
		Email:    *email,
		Name:     *name,
		Password: *password,
		Role:     role,
	})
	if err != nil {
		return err
	}
	return printJSON(user)
}

func newAssignmentService(cfg app.Config, db *sql.DB) *assignment.Service {
	return assignment.NewService(db, review.NewService(db, review.Config{PageSize: cfg.ReviewPageSize}), assignment.Config{
		ReviewerEmails: cfg.ReviewerEmails,
		ExamFilter:     cfg.AssignExamFilter,
		BulkTimeout:    cfg.BulkTimeout,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
