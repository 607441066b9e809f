package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/ems-program-api/internal/dto"
	"github.com/noah-isme/ems-program-api/internal/models"
	"github.com/noah-isme/ems-program-api/pkg/config"
	appErrors "github.com/noah-isme/ems-program-api/pkg/errors"
)

type bulkServiceStub struct {
	executed   []dto.BulkOperationRequest
	actors     []dto.Actor
	query      dto.BulkOperationQuery
	rolledBack string
	result     *dto.BulkOperationResult
	err        error
}

func (s *bulkServiceStub) Execute(_ context.Context, req dto.BulkOperationRequest, actor dto.Actor) (*dto.BulkOperationResult, error) {
	s.executed = append(s.executed, req)
	s.actors = append(s.actors, actor)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	total := 3
	return &dto.BulkOperationResult{Success: true, DryRun: req.DryRun, TotalMatching: &total}, nil
}

func (s *bulkServiceStub) List(_ context.Context, query dto.BulkOperationQuery) (*dto.BulkOperationHistory, error) {
	s.query = query
	return &dto.BulkOperationHistory{
		Success: true,
		Operations: []models.BulkOperationLog{{
			ID:            "op-1",
			OperationType: models.BulkOperationUpdateStatus,
			TargetTable:   models.TableStudents,
			Status:        models.BulkStatusCompleted,
			AffectedCount: 3,
			PerformedBy:   "admin",
			CreatedAt:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		}},
	}, nil
}

func (s *bulkServiceStub) Get(_ context.Context, id string) (*models.BulkOperationLog, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "bulk operation not found")
}

func (s *bulkServiceStub) Rollback(_ context.Context, id string, actor dto.Actor) (*dto.RollbackResult, error) {
	s.rolledBack = id
	s.actors = append(s.actors, actor)
	return &dto.RollbackResult{Success: true, OperationID: id, RestoredCount: 3, Message: "restored 3 rows"}, nil
}

func (s *bulkServiceStub) Tables() []dto.TargetTableInfo {
	return nil
}

func runCLI(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	t.Setenv("BULKCTL_ACTOR", "")
	var out bytes.Buffer
	a.out = &out
	root := newRootCmd(a)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTablesWithoutDatabase(t *testing.T) {
	out, err := runCLI(t, &app{}, "tables")
	require.NoError(t, err)
	assert.Contains(t, out, "TABLE")
	assert.Contains(t, out, "students")
}

func TestHistoryPassesFilters(t *testing.T) {
	stub := &bulkServiceStub{}
	out, err := runCLI(t, &app{svc: stub}, "history", "--table", "students", "--status", "Completed, failed", "--limit", "10")
	require.NoError(t, err)

	assert.Equal(t, models.TableStudents, stub.query.TargetTable)
	assert.Equal(t, []models.BulkOperationStatus{models.BulkStatusCompleted, models.BulkStatusFailed}, stub.query.Status)
	assert.Equal(t, 10, stub.query.Limit)
	assert.Contains(t, out, "op-1")
	assert.Contains(t, out, "2026-03-01 09:00:00")
}

func TestPreviewIsDryRun(t *testing.T) {
	stub := &bulkServiceStub{}
	out, err := runCLI(t, &app{svc: stub}, "preview",
		"--table", "students",
		"--filter", "status:equals:withdrawn",
		"--filter", "created_at:greater_than:2026-01-01T00:00:00Z",
		"--param", "new_status=inactive",
	)
	require.NoError(t, err)
	require.Len(t, stub.executed, 1)

	req := stub.executed[0]
	assert.True(t, req.DryRun)
	assert.Equal(t, models.BulkOperationUpdateStatus, req.Operation)
	assert.Equal(t, "2026-01-01T00:00:00Z", req.Filters[1].Value)
	assert.JSONEq(t, `{"new_status":"inactive"}`, string(req.Parameters))

	var res dto.BulkOperationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.DryRun)
}

func TestRunRequiresActor(t *testing.T) {
	stub := &bulkServiceStub{}
	_, err := runCLI(t, &app{svc: stub}, "run", "--table", "students", "--param", "new_status=inactive")
	require.Error(t, err)
	assert.Empty(t, stub.executed)
}

func TestRunRecordsActor(t *testing.T) {
	stub := &bulkServiceStub{}
	_, err := runCLI(t, &app{svc: stub}, "run", "--actor", "ops-1",
		"--table", "students", "--operation", "delete_records",
		"--filter", "status:equals:withdrawn", "--param", "confirmed=true")
	require.NoError(t, err)
	require.Len(t, stub.executed, 1)
	assert.False(t, stub.executed[0].DryRun)
	assert.JSONEq(t, `{"confirmed":true}`, string(stub.executed[0].Parameters))
	assert.Equal(t, "ops-1", stub.actors[0].ID)
}

func TestRollbackPrintsMessage(t *testing.T) {
	stub := &bulkServiceStub{}
	out, err := runCLI(t, &app{svc: stub}, "rollback", "op-7", "--actor", "ops-1")
	require.NoError(t, err)
	assert.Equal(t, "op-7", stub.rolledBack)
	assert.Equal(t, "op-7: restored 3 rows\n", out)
}

func TestShowSurfacesServiceErrors(t *testing.T) {
	_, err := runCLI(t, &app{svc: &bulkServiceStub{}}, "show", "missing")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestRejectsUnknownFormat(t *testing.T) {
	_, err := runCLI(t, &app{svc: &bulkServiceStub{}}, "tables", "--format", "yaml")
	assert.Error(t, err)
}

func TestParseFilter(t *testing.T) {
	cases := []struct {
		raw     string
		want    models.FilterCondition
		wantErr bool
	}{
		{raw: "status:equals:withdrawn", want: models.FilterCondition{Field: "status", Operator: models.FilterEquals, Value: "withdrawn"}},
		{raw: "status:in_list:", want: models.FilterCondition{Field: "status", Operator: models.FilterInList, Value: ""}},
		{raw: "status:equals", wantErr: true},
		{raw: ":equals:x", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := parseFilter(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseParams(t *testing.T) {
	raw, err := parseParams([]string{"cohort_id=c-9", "confirmed=false", "note=a=b"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cohort_id":"c-9","confirmed":false,"note":"a=b"}`, string(raw))

	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)
}

func TestHistoryCacheDisabled(t *testing.T) {
	cfg := &config.Config{}
	assert.Nil(t, historyCache(cfg, zap.NewNop()))
}

func TestHistoryCacheUnreachableRedisFallsBack(t *testing.T) {
	cfg := &config.Config{
		Redis:          config.RedisConfig{Host: "127.0.0.1", Port: 1},
		BulkOperations: config.BulkOperationsConfig{HistoryCache: true},
	}
	core, logs := observer.New(zap.WarnLevel)

	assert.Nil(t, historyCache(cfg, zap.New(core)))
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "redis unavailable")
}
