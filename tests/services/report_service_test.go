package services_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportserver/src/models"
	"reportserver/src/repositories"
	"reportserver/src/schemas"
	"reportserver/src/services"
	"reportserver/tests/init_test"
)

func setupReportTest(t *testing.T) *services.ReportService {
	db := init_test.SetupTestDB(t)

	t.Cleanup(func() {
		init_test.TruncateTables(t, db)
	})

	schedules := repositories.NewScheduleRepository(db)
	orgID := "org-1"
	_, err := schedules.CreateSchedule(context.Background(), &schemas.CreateScheduleRequest{
		Name:       "weekly-inventory",
		ReportKey:  "schedule_inventory",
		OrgID:      &orgID,
		Cadence:    models.CadenceWeekly,
		TimeOfDay:  "07:30",
		Format:     models.FormatCSV,
		Recipients: []string{"ops@example.com"},
		CreatedBy:  "test-user",
	})
	require.NoError(t, err)

	return services.NewReportService(db)
}

func TestGenerateScheduleInventoryCSV(t *testing.T) {
	svc := setupReportTest(t)

	artifact, err := svc.Generate(context.Background(), "schedule_inventory", nil, models.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, "text/csv", artifact.ContentType)
	assert.Equal(t, "utf-8", artifact.Encoding)
	assert.True(t, strings.HasSuffix(artifact.Filename, ".csv"))

	records, err := csv.NewReader(strings.NewReader(string(artifact.Bytes))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2) // header + one schedule
	assert.Equal(t, "name", records[0][0])
	assert.Equal(t, "weekly-inventory", records[1][0])
}

func TestGenerateScheduleInventoryJSON(t *testing.T) {
	svc := setupReportTest(t)

	artifact, err := svc.Generate(context.Background(), "schedule_inventory", nil, models.FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, "application/json", artifact.ContentType)

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(artifact.Bytes, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "weekly-inventory", rows[0]["name"])
	assert.Equal(t, "weekly", rows[0]["cadence"])
}

func TestGenerateScopesByOrg(t *testing.T) {
	svc := setupReportTest(t)

	other := "org-2"
	artifact, err := svc.Generate(context.Background(), "schedule_inventory", &other, models.FormatJSON)
	require.NoError(t, err)

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(artifact.Bytes, &rows))
	assert.Empty(t, rows)
}

func TestGenerateUnknownReportKey(t *testing.T) {
	svc := setupReportTest(t)

	_, err := svc.Generate(context.Background(), "no-such-report", nil, models.FormatCSV)
	assert.Error(t, err)
}
