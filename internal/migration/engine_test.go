package migration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"testing"

	"gorm.io/gorm"

	"docflow/internal/database"
	"docflow/internal/database/dbtest"
	"docflow/internal/errcode"
	"docflow/internal/fields"
	"docflow/internal/geometry"
	"docflow/internal/legacy"
)

type fakeArchiver struct {
	mu    sync.Mutex
	blobs map[uint]string
	err   error
}

func (f *fakeArchiver) ArchiveLegacy(_ context.Context, templateID uint, blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.blobs == nil {
		f.blobs = map[uint]string{}
	}
	f.blobs[templateID] = string(blob)
	return nil
}

func newEngine(t *testing.T, opts ...Option) (*Engine, *fields.Store, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	store := fields.NewStore(db)
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewEngine(store, opts...), store, db
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMigrateTemplate_Normalizes(t *testing.T) {
	ctx := context.Background()
	engine, store, db := newEngine(t)
	tpl := dbtest.SeedTemplate(t, db, "contract",
		`[{"id":"name","label":"Name","required":true,"page":2,"x":400,"y":500,"width":200,"height":50}]`)

	migrated, err := engine.MigrateTemplate(ctx, tpl.ID)
	if err != nil || !migrated {
		t.Fatalf("expected migrated, got %v %v", migrated, err)
	}

	f, err := store.GetFieldByKey(ctx, tpl.ID, "name")
	if err != nil {
		t.Fatalf("get field: %v", err)
	}
	if !approx(f.X, 0.5) || !approx(f.Y, 0.5) || !approx(f.Width, 0.25) || !approx(f.Height, 0.05) {
		t.Fatalf("unexpected geometry %+v", f)
	}
	if f.Label != "Name" || !f.Required || f.Page != 2 {
		t.Fatalf("unexpected attributes %+v", f)
	}
}

func TestMigrateTemplate_Defaults(t *testing.T) {
	ctx := context.Background()
	engine, store, db := newEngine(t)
	tpl := dbtest.SeedTemplate(t, db, "bare", `[{}, {"type":"date","x":"80"}]`)

	if _, err := engine.MigrateTemplate(ctx, tpl.ID); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	list, err := store.ListFields(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 fields got %d", len(list))
	}
	first := list[0]
	if first.FieldKey != "field_0" || first.Label != "Field 1" || first.Required || first.Page != 1 {
		t.Fatalf("unexpected defaults %+v", first)
	}
	if !approx(first.X, 0) || !approx(first.Width, 0.125) || !approx(first.Height, 0.03) {
		t.Fatalf("unexpected default geometry %+v", first)
	}
	if list[1].FieldKey != "field_1" || !approx(list[1].X, 0.1) {
		t.Fatalf("unexpected second field %+v", list[1])
	}
}

func TestMigrateTemplate_Clamps(t *testing.T) {
	ctx := context.Background()
	engine, store, db := newEngine(t)
	tpl := dbtest.SeedTemplate(t, db, "clamp", `[{"id":"tiny","x":-10,"y":-5,"width":2,"height":1}]`)

	if _, err := engine.MigrateTemplate(ctx, tpl.ID); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	f, err := store.GetFieldByKey(ctx, tpl.ID, "tiny")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if f.X != 0 || f.Y != 0 || !approx(f.Width, geometry.MinSize) || !approx(f.Height, geometry.MinSize) {
		t.Fatalf("expected clamped geometry, got %+v", f)
	}
}

func TestMigrateTemplate_ClampsToFullWidth(t *testing.T) {
	ctx := context.Background()
	engine, store, db := newEngine(t)
	tpl := dbtest.SeedTemplate(t, db, "wide", `[{"id":"banner","x":-50,"width":2000}]`)

	if _, err := engine.MigrateTemplate(ctx, tpl.ID); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	f, err := store.GetFieldByKey(ctx, tpl.ID, "banner")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if f.X != 0 || f.Width != 1 {
		t.Fatalf("expected x=0 width=1, got %+v", f)
	}
}

func TestMigrateTemplate_CustomCanvas(t *testing.T) {
	ctx := context.Background()
	engine, store, db := newEngine(t, WithCanvas(geometry.Canvas{Width: 1000, Height: 1000}))
	tpl := dbtest.SeedTemplate(t, db, "canvas", `[{"id":"a","x":400,"y":500,"width":200,"height":50}]`)

	if _, err := engine.MigrateTemplate(ctx, tpl.ID); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	f, _ := store.GetFieldByKey(ctx, tpl.ID, "a")
	if f == nil || !approx(f.X, 0.4) || !approx(f.Width, 0.2) {
		t.Fatalf("unexpected geometry %+v", f)
	}
}

func TestMigrateTemplate_Idempotent(t *testing.T) {
	ctx := context.Background()
	engine, store, db := newEngine(t)
	tpl := dbtest.SeedTemplate(t, db, "twice", `[{"id":"a"},{"id":"b"}]`)

	if migrated, err := engine.MigrateTemplate(ctx, tpl.ID); err != nil || !migrated {
		t.Fatalf("first run: %v %v", migrated, err)
	}
	migrated, err := engine.MigrateTemplate(ctx, tpl.ID)
	if err != nil || migrated {
		t.Fatalf("second run should skip, got %v %v", migrated, err)
	}
	if n, _ := store.CountFields(ctx, tpl.ID); n != 2 {
		t.Fatalf("expected 2 fields got %d", n)
	}
}

func TestMigrateTemplate_Skips(t *testing.T) {
	ctx := context.Background()
	engine, store, db := newEngine(t)

	cases := map[string]string{
		"empty":      "",
		"null":       "null",
		"object":     `{"id":"a"}`,
		"emptyArray": "[]",
		"tableOnly":  `[{"id":"grid","type":"table","tableData":[["a"]]}]`,
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			tpl := dbtest.SeedTemplate(t, db, name, blob)
			migrated, err := engine.MigrateTemplate(ctx, tpl.ID)
			if err != nil || migrated {
				t.Fatalf("expected skip, got %v %v", migrated, err)
			}
			if n, _ := store.CountFields(ctx, tpl.ID); n != 0 {
				t.Fatalf("expected no fields, got %d", n)
			}
		})
	}
}

func TestMigrateTemplate_SkipsTables(t *testing.T) {
	ctx := context.Background()
	engine, store, db := newEngine(t)
	tpl := dbtest.SeedTemplate(t, db, "mixed",
		`[{"id":"grid","type":"table","tableData":[["a","b"]]},{"id":"sign","type":"signature","required":true}]`)

	if migrated, err := engine.MigrateTemplate(ctx, tpl.ID); err != nil || !migrated {
		t.Fatalf("migrate: %v %v", migrated, err)
	}
	list, _ := store.ListFields(ctx, tpl.ID)
	if len(list) != 1 || list[0].FieldKey != "sign" {
		t.Fatalf("expected only the signature field, got %+v", list)
	}
}

func TestMigrateTemplate_RollsBackOnInvalidElement(t *testing.T) {
	ctx := context.Background()
	engine, store, db := newEngine(t)
	// x 与 width 单独裁剪后仍越界：0.875 + 0.25 > 1
	tpl := dbtest.SeedTemplate(t, db, "overflow", `[{"id":"ok"},{"id":"wide","x":700,"width":200}]`)

	_, err := engine.MigrateTemplate(ctx, tpl.ID)
	if !errors.Is(err, geometry.ErrInvalidGeometry) {
		t.Fatalf("expected ErrInvalidGeometry got %v", err)
	}
	if n, _ := store.CountFields(ctx, tpl.ID); n != 0 {
		t.Fatalf("expected rollback, got %d fields", n)
	}
}

func TestMigrateTemplate_DuplicateLegacyIDs(t *testing.T) {
	ctx := context.Background()
	engine, store, db := newEngine(t)
	tpl := dbtest.SeedTemplate(t, db, "dup", `[{"id":"a"},{"id":"a"}]`)

	if _, err := engine.MigrateTemplate(ctx, tpl.ID); !errors.Is(err, fields.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey got %v", err)
	}
	if n, _ := store.CountFields(ctx, tpl.ID); n != 0 {
		t.Fatalf("expected rollback, got %d fields", n)
	}
}

func TestMigrateTemplate_Errors(t *testing.T) {
	ctx := context.Background()
	engine, _, db := newEngine(t)

	if _, err := engine.MigrateTemplate(ctx, 999); !errors.Is(err, fields.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}

	tpl := dbtest.SeedTemplate(t, db, "broken", `[{"id":`)
	if _, err := engine.MigrateTemplate(ctx, tpl.ID); !errors.Is(err, legacy.ErrParseFailure) {
		t.Fatalf("expected ErrParseFailure got %v", err)
	}
}

func TestMigrateTemplate_Archives(t *testing.T) {
	ctx := context.Background()
	archiver := &fakeArchiver{}
	engine, _, db := newEngine(t, WithArchiver(archiver))
	blob := `[{"id":"a"}]`
	tpl := dbtest.SeedTemplate(t, db, "archived", blob)
	skipped := dbtest.SeedTemplate(t, db, "empty", "")

	if _, err := engine.MigrateTemplate(ctx, tpl.ID); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := engine.MigrateTemplate(ctx, skipped.ID); err != nil {
		t.Fatalf("migrate empty: %v", err)
	}
	if len(archiver.blobs) != 1 || archiver.blobs[tpl.ID] != blob {
		t.Fatalf("unexpected archive contents %+v", archiver.blobs)
	}
}

func TestMigrateTemplate_ArchiveFailureAborts(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("bucket unavailable")
	engine, store, db := newEngine(t, WithArchiver(&fakeArchiver{err: boom}))
	tpl := dbtest.SeedTemplate(t, db, "archived", `[{"id":"a"}]`)

	if _, err := engine.MigrateTemplate(ctx, tpl.ID); !errors.Is(err, boom) {
		t.Fatalf("expected archive error got %v", err)
	}
	if n, _ := store.CountFields(ctx, tpl.ID); n != 0 {
		t.Fatalf("expected no fields, got %d", n)
	}
}

func TestMigrateTemplateStatus(t *testing.T) {
	ctx := context.Background()
	engine, _, db := newEngine(t)
	tpl := dbtest.SeedTemplate(t, db, "status", `[{"id":"a"}]`)
	broken := dbtest.SeedTemplate(t, db, "broken", `not json`)

	st := engine.MigrateTemplateStatus(ctx, tpl.ID)
	if !st.Success || !st.Migrated || st.Message != MessageMigrated {
		t.Fatalf("unexpected status %+v", st)
	}
	st = engine.MigrateTemplateStatus(ctx, tpl.ID)
	if !st.Success || st.Migrated || st.Message != MessageSkipped {
		t.Fatalf("unexpected status %+v", st)
	}
	st = engine.MigrateTemplateStatus(ctx, broken.ID)
	if st.Success || !strings.HasPrefix(st.Message, "Migration failed: ") || st.ErrorCode != errcode.ParseFailure {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestMigrateAll(t *testing.T) {
	ctx := context.Background()
	engine, store, db := newEngine(t, WithWorkers(3))

	a := dbtest.SeedTemplate(t, db, "a", `[{"id":"name"},{"id":"date","type":"date"}]`)
	dbtest.SeedTemplate(t, db, "b", "")
	broken := dbtest.SeedTemplate(t, db, "c", `[{"id":"x"`)
	d := dbtest.SeedTemplate(t, db, "d", `[{"id":"sig","type":"signature"}]`)
	dbtest.SeedTemplate(t, db, "e", `{"not":"array"}`)

	result, err := engine.MigrateAll(ctx)
	if err != nil {
		t.Fatalf("migrate all: %v", err)
	}
	if result.TotalTemplates != 5 || result.MigratedCount != 2 || result.SkippedCount != 2 || result.ErrorCount != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Successful() {
		t.Fatalf("result with errors must not be successful")
	}
	if len(result.Errors) != 1 || !strings.HasPrefix(result.Errors[0], "Template ID ") ||
		!strings.Contains(result.Errors[0], legacy.ErrParseFailure.Error()) {
		t.Fatalf("unexpected errors %v", result.Errors)
	}
	if !strings.HasPrefix(result.Errors[0], "Template ID "+itoa(broken.ID)+": ") {
		t.Fatalf("error not attributed to template %d: %v", broken.ID, result.Errors)
	}
	if !approx(result.SuccessRate(), 0.8) {
		t.Fatalf("unexpected success rate %v", result.SuccessRate())
	}
	if result.ErrorCode != errcode.ParseFailure {
		t.Fatalf("expected parse failure code got %d", result.ErrorCode)
	}

	if n, _ := store.CountFields(ctx, a.ID); n != 2 {
		t.Fatalf("template a: expected 2 fields got %d", n)
	}
	if n, _ := store.CountFields(ctx, d.ID); n != 1 {
		t.Fatalf("template d: expected 1 field got %d", n)
	}

	again, err := engine.MigrateAll(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again.MigratedCount != 0 || again.SkippedCount != 4 || again.ErrorCount != 1 {
		t.Fatalf("unexpected second result %+v", again)
	}
	if !approx(again.SuccessRate(), 0.8) {
		t.Fatalf("rerun success rate should count skipped templates, got %v", again.SuccessRate())
	}
}

func TestMigrateTemplate_BlankLegacyID(t *testing.T) {
	ctx := context.Background()
	engine, store, db := newEngine(t)
	tpl := dbtest.SeedTemplate(t, db, "contract", `[{"id":"","label":"Name"},{"id":"date","type":"date"}]`)

	migrated, err := engine.MigrateTemplate(ctx, tpl.ID)
	if err != nil || !migrated {
		t.Fatalf("expected migrated, got %v %v", migrated, err)
	}
	f, err := store.GetFieldByKey(ctx, tpl.ID, "field_0")
	if err != nil {
		t.Fatalf("blank id should map to field_0: %v", err)
	}
	if f.Label != "Name" {
		t.Fatalf("unexpected field %+v", f)
	}
}

func TestResult_SuccessRate(t *testing.T) {
	cases := []struct {
		name   string
		result Result
		want   float64
	}{
		{"mixed", Result{TotalTemplates: 5, MigratedCount: 2, SkippedCount: 2, ErrorCount: 1}, 0.8},
		{"rerun all skipped", Result{TotalTemplates: 3, SkippedCount: 3}, 1},
		{"all failed", Result{TotalTemplates: 2, ErrorCount: 2}, 0},
		{"empty", Result{}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.result.SuccessRate(); !approx(got, tc.want) {
				t.Fatalf("expected %v got %v", tc.want, got)
			}
		})
	}
}

func TestMigrateTemplate_ConcurrentSameTemplate(t *testing.T) {
	ctx := context.Background()
	engine, store, db := newEngine(t)
	tpl := dbtest.SeedTemplate(t, db, "contract",
		`[{"id":"name","x":10,"y":10,"width":100,"height":20},{"id":"date","type":"date"},{"id":"sig","type":"signature"}]`)

	const callers = 8
	var (
		wg       sync.WaitGroup
		migrated = make([]bool, callers)
		errs     = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			migrated[i], errs[i] = engine.MigrateTemplate(ctx, tpl.ID)
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if migrated[i] {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one caller to migrate, got %d", created)
	}
	if n, err := store.CountFields(ctx, tpl.ID); err != nil || n != 3 {
		t.Fatalf("expected 3 fields got %d (%v)", n, err)
	}
}

func TestMigrateAll_ErrorsSortedByTemplate(t *testing.T) {
	ctx := context.Background()
	engine, _, db := newEngine(t, WithWorkers(4))
	var ids []uint
	for _, name := range []string{"a", "b", "c", "d"} {
		ids = append(ids, dbtest.SeedTemplate(t, db, name, "garbage").ID)
	}

	result, err := engine.MigrateAll(ctx)
	if err != nil {
		t.Fatalf("migrate all: %v", err)
	}
	if result.ErrorCount != 4 || len(result.Errors) != 4 {
		t.Fatalf("unexpected result %+v", result)
	}
	for i, id := range ids {
		if !strings.HasPrefix(result.Errors[i], "Template ID "+itoa(id)+": ") {
			t.Fatalf("errors not sorted: %v", result.Errors)
		}
	}
}

func TestMigrateAll_ErrorCodeFollowsFailures(t *testing.T) {
	ctx := context.Background()
	engine, _, db := newEngine(t)
	dbtest.SeedTemplate(t, db, "dup", `[{"id":"a"},{"id":"a"}]`)

	result, err := engine.MigrateAll(ctx)
	if err != nil {
		t.Fatalf("migrate all: %v", err)
	}
	if result.ErrorCode != errcode.DuplicateKey {
		t.Fatalf("expected duplicate key code got %d", result.ErrorCode)
	}

	dbtest.SeedTemplate(t, db, "broken", `[{"id":"x"`)
	result, err = engine.MigrateAll(ctx)
	if err != nil {
		t.Fatalf("migrate all: %v", err)
	}
	if result.ErrorCount != 2 || result.ErrorCode != errcode.MixedFailures {
		t.Fatalf("expected mixed failures got %+v", result)
	}
}

func TestResult_EmptyBatch(t *testing.T) {
	engine, _, _ := newEngine(t)
	result, err := engine.MigrateAll(context.Background())
	if err != nil {
		t.Fatalf("migrate all: %v", err)
	}
	if !result.Successful() || result.SuccessRate() != 1 || result.Errors == nil || result.ErrorCode != errcode.OK {
		t.Fatalf("unexpected empty result %+v", result)
	}
}

func TestMigrateDocumentValues(t *testing.T) {
	ctx := context.Background()
	engine, store, db := newEngine(t)
	tpl := dbtest.SeedTemplate(t, db, "contract",
		`[{"id":"name"},{"id":"grid","type":"table"},{"label":"Signed on","type":"date"}]`)
	if _, err := engine.MigrateTemplate(ctx, tpl.ID); err != nil {
		t.Fatalf("migrate template: %v", err)
	}

	data := `{"title":"x","coordinateFields":"[{\"id\":\"name\",\"value\":\"Ada\"},{\"id\":\"grid\",\"type\":\"table\",\"value\":\"cells\"},{\"type\":\"date\",\"value\":\"2024-01-02\"},{\"id\":\"gone\",\"value\":\"x\"}]"}`
	doc := dbtest.SeedDocument(t, db, tpl.ID, data)

	n, err := engine.MigrateDocumentValues(ctx, doc.ID)
	if err != nil {
		t.Fatalf("migrate values: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 values, got %d", n)
	}
	m, err := store.ValueMap(ctx, doc.ID)
	if err != nil {
		t.Fatalf("value map: %v", err)
	}
	if len(m) != 2 || m["name"] != "Ada" || m["field_2"] != "2024-01-02" {
		t.Fatalf("unexpected values %v", m)
	}
}

func TestMigrateDocumentValues_KeepsEdits(t *testing.T) {
	ctx := context.Background()
	engine, store, db := newEngine(t)
	tpl := dbtest.SeedTemplate(t, db, "contract", `[{"id":"name"},{"id":"city"}]`)
	if _, err := engine.MigrateTemplate(ctx, tpl.ID); err != nil {
		t.Fatalf("migrate template: %v", err)
	}
	doc := dbtest.SeedDocument(t, db, tpl.ID,
		`{"coordinateFields":[{"id":"name","value":"Ada"},{"id":"city","value":"London"}]}`)

	if n, err := engine.MigrateDocumentValues(ctx, doc.ID); err != nil || n != 2 {
		t.Fatalf("first run: %d %v", n, err)
	}

	name, _ := store.GetFieldByKey(ctx, tpl.ID, "name")
	edited := "Grace"
	if _, err := store.UpsertValue(ctx, doc.ID, name.ID, fields.ValueInput{Value: &edited}); err != nil {
		t.Fatalf("edit: %v", err)
	}

	if n, err := engine.MigrateDocumentValues(ctx, doc.ID); err != nil || n != 0 {
		t.Fatalf("second run: %d %v", n, err)
	}
	m, _ := store.ValueMap(ctx, doc.ID)
	if m["name"] != "Grace" || m["city"] != "London" {
		t.Fatalf("edit was overwritten: %v", m)
	}

	var count int64
	db.Model(&database.DocumentFieldValue{}).Where("document_id = ?", doc.ID).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 rows got %d", count)
	}
}

func TestMigrateDocumentValues_NoLegacyData(t *testing.T) {
	ctx := context.Background()
	engine, _, db := newEngine(t)
	tpl := dbtest.SeedTemplate(t, db, "contract", "")
	doc := dbtest.SeedDocument(t, db, tpl.ID, `{"title":"no fields"}`)

	if n, err := engine.MigrateDocumentValues(ctx, doc.ID); err != nil || n != 0 {
		t.Fatalf("expected nothing to do, got %d %v", n, err)
	}
	if _, err := engine.MigrateDocumentValues(ctx, 12345); !errors.Is(err, fields.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}
