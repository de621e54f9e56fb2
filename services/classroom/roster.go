package classroom

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"shortstacks/models"
	"shortstacks/services/access"
	"shortstacks/utils"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// RowError reports a roster line that was skipped.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportSummary is the outcome of a roster import.
type ImportSummary struct {
	Created  int        `json:"created"`
	Enrolled int        `json:"enrolled"`
	Skipped  []RowError `json:"skipped"`
}

// ImportRoster reads a CSV or XLSX roster with the columns
// username, display_name, password and enrolls every valid row.
func (s *Service) ImportRoster(ctx context.Context, p access.Principal, classID uint, filename string, r io.Reader) (*ImportSummary, error) {
	if err := access.RequireRole(p, models.RoleTeacher, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if err := access.TeacherOwnsClasses(ctx, s.db, p, []uint{classID}); err != nil {
		return nil, err
	}

	rows, err := readRoster(filename, r)
	if err != nil {
		return nil, utils.Validation(err.Error())
	}
	if len(rows) < 2 {
		return nil, utils.Validation("Roster file has no data rows")
	}
	col := buildColumnIndex(rows[0])
	if _, ok := col["username"]; !ok {
		return nil, utils.Validation("Roster file needs a username column")
	}

	summary := &ImportSummary{Skipped: []RowError{}}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, rec := range rows[1:] {
			line := i + 2
			in := StudentInput{
				Username:    cell(rec, col, "username"),
				DisplayName: cell(rec, col, "display_name"),
				Password:    cell(rec, col, "password"),
			}
			if in.Username == "" {
				continue
			}
			var user *models.User
			var created bool
			// each row gets a savepoint so one bad line does not abort the import
			rowErr := tx.Transaction(func(rowTx *gorm.DB) error {
				var err error
				user, created, err = enroll(rowTx, classID, in)
				return err
			})
			if rowErr != nil {
				var appErr *utils.AppError
				msg := "failed to enroll"
				if errors.As(rowErr, &appErr) {
					msg = appErr.Message
				}
				summary.Skipped = append(summary.Skipped, RowError{Row: line, Message: msg})
				continue
			}
			if created {
				summary.Created++
			}
			if user != nil {
				summary.Enrolled++
			}
		}
		return nil
	})
	if err != nil {
		return nil, utils.Internal(err, "Roster import failed")
	}

	logrus.WithFields(logrus.Fields{
		"class_id": classID, "created": summary.Created, "enrolled": summary.Enrolled, "skipped": len(summary.Skipped),
	}).Info("Roster imported")
	return summary, nil
}

func readRoster(filename string, r io.Reader) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return readCSV(r)
	case ".xlsx":
		return readXLSX(r)
	}
	return nil, fmt.Errorf("unsupported roster file type %q (csv, xlsx)", filepath.Ext(filename))
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	// Use first sheet
	sht := f.GetSheetName(0)
	if sht == "" {
		sht = "Sheet1"
	}
	return f.GetRows(sht)
}

func buildColumnIndex(header []string) map[string]int {
	m := map[string]int{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.ReplaceAll(key, " ", "_")
		m[key] = i
	}
	return m
}

func cell(rec []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
