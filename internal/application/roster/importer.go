// Package roster implements bulk student onboarding: an uploaded XLSX sheet
// becomes student documents with freshly generated, bcrypt-hashed
// credentials. Delivery of the credentials (email/SMS) is an external
// collaborator; the importer only returns them to the caller.
package roster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/versant-edu/versant-hub/internal/domain/shared"
	"github.com/versant-edu/versant-hub/internal/domain/student"
	"github.com/versant-edu/versant-hub/pkg/logger"
)

// Expected sheet columns, in order. A header row is detected and skipped.
const (
	colName = iota
	colEmail
	colRollNumber
	minColumns = 2
)

// Credential is one issued login, returned to the caller for dispatch.
type Credential struct {
	StudentID  string `json:"student_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	RollNumber string `json:"roll_number,omitempty"`
	Password   string `json:"password"`
}

// SkippedRow records a roster row that could not be imported.
type SkippedRow struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportResult summarizes one roster upload.
type ImportResult struct {
	Created []Credential `json:"created"`
	Skipped []SkippedRow `json:"skipped"`
}

// Importer turns roster spreadsheets into student documents.
type Importer struct {
	students student.Repository
	log      *logger.Logger
	now      func() time.Time

	// genPassword is swappable for tests.
	genPassword func() string
}

// NewImporter creates an Importer.
func NewImporter(students student.Repository, log *logger.Logger) *Importer {
	return &Importer{
		students:    students,
		log:         log.With(logger.Component("roster_importer")),
		now:         func() time.Time { return time.Now().UTC() },
		genPassword: generatePassword,
	}
}

// ImportXLSX reads the first sheet of an XLSX roster (name, email, roll
// number) and creates one student per row under the given campus/course/
// batch placement. Rows that fail validation or collide with existing
// students are skipped, not fatal.
func (i *Importer) ImportXLSX(ctx context.Context, r io.Reader, campus, course, batch string) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open roster file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("roster file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read roster sheet: %w", err)
	}

	result := &ImportResult{}
	for idx, row := range rows {
		rowNum := idx + 1
		if idx == 0 && isHeaderRow(row) {
			continue
		}
		if len(row) < minColumns {
			result.Skipped = append(result.Skipped, SkippedRow{Row: rowNum, Reason: "too few columns"})
			continue
		}

		name := strings.TrimSpace(row[colName])
		email := strings.ToLower(strings.TrimSpace(row[colEmail]))
		rollNumber := ""
		if len(row) > colRollNumber {
			rollNumber = strings.TrimSpace(row[colRollNumber])
		}

		if name == "" || email == "" || !strings.Contains(email, "@") {
			result.Skipped = append(result.Skipped, SkippedRow{Row: rowNum, Reason: "missing or invalid name/email"})
			continue
		}

		cred, err := i.createStudent(ctx, name, email, rollNumber, campus, course, batch)
		if err != nil {
			reason := "storage error"
			if errors.Is(err, shared.ErrAlreadyExists) {
				reason = "student already exists"
			} else {
				i.log.Error("roster row import failed", logger.Int("row", rowNum), logger.Err(err))
			}
			result.Skipped = append(result.Skipped, SkippedRow{Row: rowNum, Reason: reason})
			continue
		}
		result.Created = append(result.Created, cred)
	}

	i.log.Info("roster import completed",
		logger.Int("created", len(result.Created)),
		logger.Int("skipped", len(result.Skipped)),
		logger.String("campus", campus), logger.String("course", course), logger.String("batch", batch))
	return result, nil
}

func (i *Importer) createStudent(ctx context.Context, name, email, rollNumber, campus, course, batch string) (Credential, error) {
	password := i.genPassword()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Credential{}, fmt.Errorf("hash password: %w", err)
	}

	now := i.now()
	s := &student.Student{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		RollNumber:   rollNumber,
		PasswordHash: string(hash),
		Campus:       campus,
		Course:       course,
		Batch:        batch,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := i.students.Create(ctx, s); err != nil {
		return Credential{}, err
	}

	return Credential{
		StudentID:  s.ID,
		Name:       name,
		Email:      email,
		RollNumber: rollNumber,
		Password:   password,
	}, nil
}

func isHeaderRow(row []string) bool {
	for _, cell := range row {
		c := strings.ToLower(strings.TrimSpace(cell))
		if c == "email" || c == "name" || c == "roll number" || c == "roll_number" {
			return true
		}
	}
	return false
}

// generatePassword issues a random 10-character initial password. Students
// are forced to change it on first login by the auth layer.
func generatePassword() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:10]
}
