package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"reportserver/src/models"
	"reportserver/src/schemas"
)

// GeneratorFunc renders one report as tabular data: a header row plus
// records. The service takes care of turning that into csv or json bytes.
type GeneratorFunc func(ctx context.Context, orgID *string) (header []string, records [][]string, err error)

type ReportServiceI interface {
	Generate(ctx context.Context, reportKey string, orgID *string, format models.ReportFormat) (*schemas.ReportArtifact, error)
}

// ReportService resolves a schedule's reportKey to a registered generator
// and renders the result in the requested format.
type ReportService struct {
	DB         *pgxpool.Pool
	generators map[string]GeneratorFunc
}

func NewReportService(db *pgxpool.Pool) *ReportService {
	s := &ReportService{
		DB:         db,
		generators: map[string]GeneratorFunc{},
	}
	s.Register("schedule_activity", s.generateScheduleActivity)
	s.Register("schedule_inventory", s.generateScheduleInventory)
	return s
}

// Register adds a generator under a report key. Later registrations replace
// earlier ones.
func (s *ReportService) Register(reportKey string, fn GeneratorFunc) {
	s.generators[reportKey] = fn
}

func (s *ReportService) Generate(ctx context.Context, reportKey string, orgID *string, format models.ReportFormat) (*schemas.ReportArtifact, error) {
	fn, ok := s.generators[reportKey]
	if !ok {
		return nil, fmt.Errorf("unknown report key %q", reportKey)
	}

	header, records, err := fn(ctx, orgID)
	if err != nil {
		return nil, err
	}

	return renderArtifact(reportKey, format, header, records)
}

// generateScheduleActivity reports the recent run history of every schedule,
// optionally narrowed to one organization.
func (s *ReportService) generateScheduleActivity(ctx context.Context, orgID *string) ([]string, [][]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT s.name, s.report_key, r.status,
			COALESCE(r.error, ''), r.created_at, r.finished_at
		FROM scheduled_report_runs r
		JOIN scheduled_report_schedules s ON s.id = r.schedule_id
		WHERE $1::text IS NULL OR s.org_id = $1
		ORDER BY r.created_at DESC
		LIMIT 1000`, orgID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	header := []string{"schedule", "report_key", "status", "error", "created_at", "finished_at"}
	var records [][]string
	for rows.Next() {
		var (
			name, reportKey, status, errMsg string
			createdAt                       time.Time
			finishedAt                      *time.Time
		)
		if err := rows.Scan(&name, &reportKey, &status, &errMsg, &createdAt, &finishedAt); err != nil {
			return nil, nil, err
		}
		finished := ""
		if finishedAt != nil {
			finished = finishedAt.UTC().Format(time.RFC3339)
		}
		records = append(records, []string{
			name, reportKey, status, errMsg,
			createdAt.UTC().Format(time.RFC3339), finished,
		})
	}
	return header, records, rows.Err()
}

// generateScheduleInventory reports the configured schedules themselves.
func (s *ReportService) generateScheduleInventory(ctx context.Context, orgID *string) ([]string, [][]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT name, report_key, cadence, time_of_day, format, enabled,
			next_run_at, last_run_at
		FROM scheduled_report_schedules
		WHERE $1::text IS NULL OR org_id = $1
		ORDER BY id ASC`, orgID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	header := []string{"name", "report_key", "cadence", "time_of_day", "format", "enabled", "next_run_at", "last_run_at"}
	var records [][]string
	for rows.Next() {
		var (
			name, reportKey, cadence, timeOfDay, format string
			enabled                                     bool
			nextRunAt, lastRunAt                        *time.Time
		)
		if err := rows.Scan(&name, &reportKey, &cadence, &timeOfDay, &format, &enabled, &nextRunAt, &lastRunAt); err != nil {
			return nil, nil, err
		}
		records = append(records, []string{
			name, reportKey, cadence, timeOfDay, format,
			fmt.Sprintf("%t", enabled),
			formatNullableTime(nextRunAt), formatNullableTime(lastRunAt),
		})
	}
	return header, records, rows.Err()
}

func formatNullableTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func renderArtifact(reportKey string, format models.ReportFormat, header []string, records [][]string) (*schemas.ReportArtifact, error) {
	stamp := time.Now().UTC().Format("20060102")

	switch format {
	case models.FormatJSON:
		objects := make([]map[string]string, 0, len(records))
		for _, record := range records {
			obj := make(map[string]string, len(header))
			for i, col := range header {
				if i < len(record) {
					obj[col] = record[i]
				}
			}
			objects = append(objects, obj)
		}
		data, err := json.MarshalIndent(objects, "", "  ")
		if err != nil {
			return nil, err
		}
		return &schemas.ReportArtifact{
			Filename:    fmt.Sprintf("%s_%s.json", reportKey, stamp),
			ContentType: "application/json",
			Encoding:    "utf-8",
			Bytes:       data,
		}, nil
	default:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(header); err != nil {
			return nil, err
		}
		for _, record := range records {
			if err := w.Write(record); err != nil {
				return nil, err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		return &schemas.ReportArtifact{
			Filename:    fmt.Sprintf("%s_%s.csv", reportKey, stamp),
			ContentType: "text/csv",
			Encoding:    "utf-8",
			Bytes:       buf.Bytes(),
		}, nil
	}
}
