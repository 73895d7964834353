package env

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/KilimcininKorOglu/voron/internal/logging"
	"github.com/KilimcininKorOglu/voron/internal/storage"
)

// Schema version bookkeeping.
const (
	MetadataTreeName = "$metadata"
	schemaVersionKey = "schema-version"
)

// ErrNoSchemaUpdate is returned when no update is registered for a step.
var ErrNoSchemaUpdate = errors.New("no schema update registered")

// UpdateStep is one version step of a schema upgrade. ReadTx sees the
// store as the previous step left it; WriteTx is where the step writes.
type UpdateStep struct {
	ReadTx  *Transaction
	WriteTx *Transaction
	From    int
	To      int
}

// SchemaUpdate migrates the store from one version to the next.
type SchemaUpdate interface {
	Update(step *UpdateStep) error
}

// SchemaUpdateFunc adapts a function to SchemaUpdate.
type SchemaUpdateFunc func(step *UpdateStep) error

// Update calls f(step).
func (f SchemaUpdateFunc) Update(step *UpdateStep) error {
	return f(step)
}

// SchemaVersion returns the version recorded in the store, 0 when none.
func (e *Environment) SchemaVersion() (int, error) {
	tx, err := e.ReadTransaction()
	if err != nil {
		return 0, err
	}
	defer tx.Dispose()
	return readSchemaVersion(tx)
}

func readSchemaVersion(tx *Transaction) (int, error) {
	t, err := tx.ReadTree(MetadataTreeName)
	if errors.Is(err, ErrTreeNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	raw, found, err := t.Read([]byte(schemaVersionKey))
	if err != nil || !found {
		return 0, err
	}
	if len(raw) != 4 {
		return 0, fmt.Errorf("schema version has %d bytes, want 4", len(raw))
	}
	return int(binary.LittleEndian.Uint32(raw)), nil
}

func writeSchemaVersion(tx *Transaction, version int) error {
	t, err := tx.CreateTree(MetadataTreeName)
	if err != nil {
		return err
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(version))
	return t.Add([]byte(schemaVersionKey), buf[:])
}

// SchemaUpgrader brings a store to a target schema version one step at a
// time. Each step commits on its own; a failed step rolls back and leaves
// the store at the version before it.
type SchemaUpgrader struct {
	env     *Environment
	updates map[int]SchemaUpdate
	logger  logging.Logger
}

// NewSchemaUpgrader returns an upgrader whose updates map a version to the
// update that migrates from it to the next one.
func NewSchemaUpgrader(env *Environment, updates map[int]SchemaUpdate) *SchemaUpgrader {
	return &SchemaUpgrader{
		env:     env,
		updates: updates,
		logger:  env.opts.Logger.WithComponent("schema-upgrader"),
	}
}

// Upgrade runs every step from the current version up to target. Steps
// commit one by one, so an error leaves the store at the last version that
// committed, which may lie between the starting version and target. The
// returned SchemaError names the step that failed; calling Upgrade again
// resumes from there.
func (u *SchemaUpgrader) Upgrade(ctx context.Context, target int) error {
	current, err := u.env.SchemaVersion()
	if err != nil {
		return err
	}
	if current > target {
		return fmt.Errorf("%w: store schema version %d is newer than %d",
			storage.ErrInvalidOperation, current, target)
	}
	for v := current; v < target; v++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := u.step(ctx, v); err != nil {
			return err
		}
		u.logger.Info("schema updated", "from", v, "to", v+1)
	}
	return nil
}

func (u *SchemaUpgrader) step(ctx context.Context, from int) error {
	fail := func(err error) error {
		if storage.IsFatal(err) {
			u.env.fail("schema update", err)
		}
		return &storage.SchemaError{From: from, To: from + 1, Err: err}
	}

	update, ok := u.updates[from]
	if !ok {
		return fail(ErrNoSchemaUpdate)
	}

	readTx, err := u.env.ReadTransaction()
	if err != nil {
		return fail(err)
	}
	defer readTx.Dispose()
	writeTx, err := u.env.WriteTransaction(ctx)
	if err != nil {
		return fail(err)
	}
	defer writeTx.Dispose()

	if err := update.Update(&UpdateStep{ReadTx: readTx, WriteTx: writeTx, From: from, To: from + 1}); err != nil {
		return fail(err)
	}
	if err := writeSchemaVersion(writeTx, from+1); err != nil {
		return fail(err)
	}
	if err := writeTx.Commit(); err != nil {
		return fail(err)
	}
	return nil
}
