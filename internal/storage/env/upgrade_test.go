package env

import (
	"context"
	"errors"
	"testing"

	"github.com/KilimcininKorOglu/voron/internal/storage"
)

func TestSchemaUpgrade(t *testing.T) {
	opts := testOptions(t)
	e := openTestEnv(t, opts)

	if v, err := e.SchemaVersion(); err != nil || v != 0 {
		t.Fatalf("SchemaVersion() = %d, %v, want 0", v, err)
	}

	var steps []int
	updates := map[int]SchemaUpdate{
		0: SchemaUpdateFunc(func(s *UpdateStep) error {
			steps = append(steps, s.From)
			tree, err := s.WriteTx.CreateTree("users")
			if err != nil {
				return err
			}
			return tree.Add([]byte("alice"), []byte("v0"))
		}),
		1: SchemaUpdateFunc(func(s *UpdateStep) error {
			steps = append(steps, s.From)
			old, err := s.ReadTx.ReadTree("users")
			if err != nil {
				return err
			}
			raw, _, err := old.Read([]byte("alice"))
			if err != nil {
				return err
			}
			tree, err := s.WriteTx.CreateTree("users")
			if err != nil {
				return err
			}
			return tree.Add([]byte("alice"), append(append([]byte(nil), raw...), "+v1"...))
		}),
	}
	u := NewSchemaUpgrader(e, updates)
	if err := u.Upgrade(context.Background(), 2); err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	if len(steps) != 2 || steps[0] != 0 || steps[1] != 1 {
		t.Errorf("steps = %v, want [0 1]", steps)
	}
	if v, _ := get(t, e, "users", "alice"); v != "v0+v1" {
		t.Errorf("alice = %q, want v0+v1", v)
	}

	// Already at the target: nothing runs.
	steps = nil
	if err := u.Upgrade(context.Background(), 2); err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	if len(steps) != 0 {
		t.Errorf("steps = %v, want none", steps)
	}

	if err := u.Upgrade(context.Background(), 1); !storage.IsInvalidOperation(err) {
		t.Errorf("Upgrade() to an older version error = %v, want invalid operation", err)
	}

	closeTestEnv(t, e)
	e = openTestEnv(t, opts)
	defer closeTestEnv(t, e)
	if v, err := e.SchemaVersion(); err != nil || v != 2 {
		t.Errorf("SchemaVersion() after reopen = %d, %v, want 2", v, err)
	}
}

func TestSchemaUpgradeFailure(t *testing.T) {
	tests := []struct {
		name         string
		updates      map[int]SchemaUpdate
		wantVersion  int
		catastrophic bool
	}{
		{
			name: "missing step",
			updates: map[int]SchemaUpdate{
				0: SchemaUpdateFunc(func(*UpdateStep) error { return nil }),
			},
			wantVersion: 1,
		},
		{
			name: "step error",
			updates: map[int]SchemaUpdate{
				0: SchemaUpdateFunc(func(s *UpdateStep) error {
					tree, err := s.WriteTx.CreateTree("half")
					if err != nil {
						return err
					}
					if err := tree.Add([]byte("k"), []byte("v")); err != nil {
						return err
					}
					return errors.New("cannot convert")
				}),
			},
			wantVersion: 0,
		},
		{
			name: "catastrophic step",
			updates: map[int]SchemaUpdate{
				0: SchemaUpdateFunc(func(*UpdateStep) error {
					return storage.NewCatastrophicError("convert", errors.New("corrupt"))
				}),
			},
			wantVersion:  0,
			catastrophic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := openTestEnv(t, testOptions(t))
			defer closeTestEnv(t, e)

			err := NewSchemaUpgrader(e, tt.updates).Upgrade(context.Background(), 2)
			var se *storage.SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("Upgrade() error = %v, want *SchemaError", err)
			}
			if !storage.IsFatal(err) {
				t.Errorf("IsFatal(%v) = false, want true", err)
			}
			if se.From != tt.wantVersion || se.To != tt.wantVersion+1 {
				t.Errorf("SchemaError = %d -> %d, want %d -> %d", se.From, se.To, tt.wantVersion, tt.wantVersion+1)
			}
			if v, err := e.SchemaVersion(); err != nil || v != tt.wantVersion {
				t.Errorf("SchemaVersion() = %d, %v, want %d", v, err, tt.wantVersion)
			}
			if _, found := get(t, e, "half", "k"); found {
				t.Error("failed step left data behind")
			}
			if e.IsCatastrophicFailureSet() != tt.catastrophic {
				t.Errorf("IsCatastrophicFailureSet() = %v, want %v", e.IsCatastrophicFailureSet(), tt.catastrophic)
			}
		})
	}
}

func TestSchemaUpgradeResumesAfterFailure(t *testing.T) {
	e := openTestEnv(t, testOptions(t))
	defer closeTestEnv(t, e)

	updates := map[int]SchemaUpdate{
		0: SchemaUpdateFunc(func(*UpdateStep) error { return nil }),
		1: SchemaUpdateFunc(func(*UpdateStep) error { return errors.New("not yet") }),
	}
	if err := NewSchemaUpgrader(e, updates).Upgrade(context.Background(), 3); err == nil {
		t.Fatal("Upgrade() error = nil, want step 1 failure")
	}
	if v, err := e.SchemaVersion(); err != nil || v != 1 {
		t.Fatalf("SchemaVersion() = %d, %v, want 1", v, err)
	}

	var steps []int
	record := SchemaUpdateFunc(func(s *UpdateStep) error {
		steps = append(steps, s.From)
		return nil
	})
	updates[1], updates[2] = record, record
	if err := NewSchemaUpgrader(e, updates).Upgrade(context.Background(), 3); err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	if len(steps) != 2 || steps[0] != 1 || steps[1] != 2 {
		t.Errorf("steps = %v, want [1 2]", steps)
	}
	if v, err := e.SchemaVersion(); err != nil || v != 3 {
		t.Errorf("SchemaVersion() = %d, %v, want 3", v, err)
	}
}
