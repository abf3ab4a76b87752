package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"docflow/internal/database/dbtest"
	"docflow/internal/fields"
	"docflow/internal/geometry"
	"docflow/internal/migration"
)

func newService(t *testing.T) (*FieldService, *fields.Store, func(name, legacy string) uint, func(templateID uint) uint) {
	t.Helper()
	db := dbtest.Open(t)
	store := fields.NewStore(db)
	engine := migration.NewEngine(store, migration.WithLogger(quietLogger()), migration.WithWorkers(1))
	svc := NewFieldService(store, engine, quietLogger())
	seedTemplate := func(name, legacy string) uint { return dbtest.SeedTemplate(t, db, name, legacy).ID }
	seedDocument := func(templateID uint) uint { return dbtest.SeedDocument(t, db, templateID, "").ID }
	return svc, store, seedTemplate, seedDocument
}

func field(templateID uint, key string, required bool) fields.NewField {
	return fields.NewField{
		TemplateID: templateID,
		FieldKey:   key,
		Label:      key,
		Required:   required,
		Page:       1,
		Rect:       geometry.Rect{X: 0.2, Y: 0.2, Width: 0.3, Height: 0.05},
	}
}

func TestFieldService_FieldLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _, seedTemplate, _ := newService(t)
	tpl := seedTemplate("contract", "")

	created, err := svc.CreateField(ctx, field(tpl, "name", true))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateField(ctx, field(tpl, "name", false)); !errors.Is(err, fields.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey got %v", err)
	}
	if _, err := svc.CreateField(ctx, field(tpl+100, "name", false)); !errors.Is(err, fields.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}

	updated, err := svc.UpdateField(ctx, created.ID, fields.FieldUpdate{
		Label: "Full name",
		Rect:  geometry.Rect{X: 0.5, Y: 0.5, Width: 0.5, Height: 0.5},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Label != "Full name" || updated.Required || updated.Version != 2 || updated.FieldKey != "name" {
		t.Fatalf("unexpected update %+v", updated)
	}
	if _, err := svc.UpdateField(ctx, created.ID, fields.FieldUpdate{
		Rect: geometry.Rect{X: 0.6, Y: 0, Width: 0.5, Height: 0.1},
	}); !errors.Is(err, geometry.ErrInvalidGeometry) {
		t.Fatalf("expected ErrInvalidGeometry got %v", err)
	}

	if _, err := svc.CreateField(ctx, field(tpl, "date", false)); err != nil {
		t.Fatalf("create date: %v", err)
	}
	required, err := svc.ListRequiredFields(ctx, tpl)
	if err != nil || len(required) != 0 {
		t.Fatalf("expected no required fields, got %v %v", required, err)
	}
	all, err := svc.ListFields(ctx, tpl)
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 fields, got %v %v", all, err)
	}

	if err := svc.DeleteField(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteField(ctx, created.ID); !errors.Is(err, fields.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
	n, err := svc.DeleteAllFields(ctx, tpl)
	if err != nil || n != 1 {
		t.Fatalf("delete all: %d %v", n, err)
	}
	if _, err := svc.ListFields(ctx, tpl+100); !errors.Is(err, fields.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown template, got %v", err)
	}
}

func TestFieldService_ValuesAndCompletion(t *testing.T) {
	ctx := context.Background()
	svc, _, seedTemplate, seedDocument := newService(t)
	tpl := seedTemplate("contract", "")
	other := seedTemplate("other", "")
	doc := seedDocument(tpl)

	name, _ := svc.CreateField(ctx, field(tpl, "name", true))
	date, _ := svc.CreateField(ctx, field(tpl, "date", true))
	foreign, _ := svc.CreateField(ctx, field(other, "name", true))

	for _, v := range []string{"Ad", "Ada"} {
		if _, err := svc.UpsertValue(ctx, doc, name.ID, text(v)); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if _, err := svc.UpsertValue(ctx, doc, foreign.ID, text("x")); !errors.Is(err, fields.ErrFieldTemplateMismatch) {
		t.Fatalf("expected ErrFieldTemplateMismatch got %v", err)
	}

	values, err := svc.ListValues(ctx, doc)
	if err != nil || len(values) != 1 || values[0].Text() != "Ada" {
		t.Fatalf("unexpected values %+v %v", values, err)
	}
	m, err := svc.ValueMap(ctx, doc)
	if err != nil || m["name"] != "Ada" {
		t.Fatalf("unexpected map %v %v", m, err)
	}
	v, err := svc.GetValue(ctx, doc, name.ID)
	if err != nil || v.Field.FieldKey != "name" {
		t.Fatalf("get value: %+v %v", v, err)
	}

	info, err := svc.Completion(ctx, doc)
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if info.IsComplete || info.FilledRequired != 1 || len(info.MissingLabels) != 1 || info.MissingLabels[0] != "date" {
		t.Fatalf("unexpected completion %+v", info)
	}

	if _, err := svc.UpsertValue(ctx, doc, date.ID, text("2024-01-01")); err != nil {
		t.Fatalf("upsert date: %v", err)
	}
	if info, _ := svc.Completion(ctx, doc); !info.IsComplete {
		t.Fatalf("expected complete, got %+v", info)
	}

	n, err := svc.DeleteAllValues(ctx, doc)
	if err != nil || n != 2 {
		t.Fatalf("delete all values: %d %v", n, err)
	}
	if _, err := svc.ValueMap(ctx, doc+100); !errors.Is(err, fields.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestFieldService_Migration(t *testing.T) {
	ctx := context.Background()
	svc, _, seedTemplate, _ := newService(t)
	tpl := seedTemplate("legacy", `[{"id":"f1","x":400,"y":500,"width":200,"height":50}]`)
	seedTemplate("broken", `[`)

	result, err := svc.MigrateAll(ctx)
	if err != nil {
		t.Fatalf("migrate all: %v", err)
	}
	if result.TotalTemplates != 2 || result.MigratedCount != 1 || result.ErrorCount != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	st := svc.MigrateTemplate(ctx, tpl)
	if !st.Success || st.Migrated || st.Message != migration.MessageSkipped {
		t.Fatalf("unexpected status %+v", st)
	}

	f, err := svc.GetFieldByKey(ctx, tpl, "f1")
	if err != nil || f.X != 0.5 || f.Height != 0.05 {
		t.Fatalf("unexpected migrated field %+v %v", f, err)
	}
}

func TestFieldService_SaveDraft(t *testing.T) {
	ctx := context.Background()
	svc, store, seedTemplate, seedDocument := newService(t)
	tpl := seedTemplate("contract", "")
	other := seedTemplate("other", "")
	doc := seedDocument(tpl)
	name, _ := svc.CreateField(ctx, field(tpl, "name", true))
	foreign, _ := svc.CreateField(ctx, field(other, "name", true))

	svc.EnableAutosave(time.Hour)

	if err := svc.SaveDraft(ctx, doc, foreign.ID, text("x")); !errors.Is(err, fields.ErrFieldTemplateMismatch) {
		t.Fatalf("expected ErrFieldTemplateMismatch got %v", err)
	}
	for _, v := range []string{"A", "Ad", "Ada"} {
		if err := svc.SaveDraft(ctx, doc, name.ID, text(v)); err != nil {
			t.Fatalf("save draft: %v", err)
		}
	}
	if _, err := store.GetValue(ctx, doc, name.ID); !errors.Is(err, fields.ErrNotFound) {
		t.Fatalf("draft should not be written before the debounce, got %v", err)
	}

	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	v, err := store.GetValue(ctx, doc, name.ID)
	if err != nil || v.Text() != "Ada" {
		t.Fatalf("expected flushed draft, got %+v %v", v, err)
	}
}
