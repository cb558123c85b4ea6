package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/dsrplatform/fleetcore/infrastructure/errors"
	"github.com/dsrplatform/fleetcore/infrastructure/logging"
	"github.com/dsrplatform/fleetcore/internal/fleetclock"
)

// Config controls where the engine stages backups and how it secures them.
type Config struct {
	BasePath      string
	EncryptionKey string
	Uploader      RemoteUploader
}

// Engine executes BackupPlans.
type Engine struct {
	cfg      Config
	adapters map[string]ComponentAdapter
	registry *MetadataRegistry
	clock    fleetclock.Clock
	ids      fleetclock.IDGenerator
	logger   *logging.Logger
}

func NewEngine(cfg Config, adapters map[string]ComponentAdapter, registry *MetadataRegistry, clock fleetclock.Clock, ids fleetclock.IDGenerator, logger *logging.Logger) *Engine {
	if adapters == nil {
		adapters = DefaultAdapters()
	}
	if clock == nil {
		clock = fleetclock.Default
	}
	if ids == nil {
		ids = fleetclock.DefaultIDs
	}
	if logger == nil {
		logger = logging.NewFromEnv("backup-engine")
	}
	return &Engine{cfg: cfg, adapters: adapters, registry: registry, clock: clock, ids: ids, logger: logger}
}

// Result is what Execute returns to its caller.
type Result struct {
	Execution Execution
	Metadata  Metadata
}

// Execute runs plan end to end: stage directory, per-component backups,
// manifest, optional compression/encryption/verification/upload, registry
// write.
func (e *Engine) Execute(ctx context.Context, plan Plan) (Result, error) {
	if err := plan.Validate(); err != nil {
		return Result{}, err
	}

	execution := Execution{
		ID:        e.ids.NewID(),
		PlanID:    plan.ID,
		StartTime: e.clock.WallNow(),
		Status:    InProgress,
	}

	stageDir := filepath.Join(e.cfg.BasePath, strings.ToLower(string(plan.Type)), execution.ID)
	if err := os.MkdirAll(stageDir, 0o700); err != nil {
		execution.Status = Failed
		return Result{Execution: execution}, errors.AdapterFailure("backup-stage-dir", err)
	}

	results, critFailure := e.runComponents(ctx, plan, stageDir)
	if critFailure != nil {
		execution.Status = Failed
		execution.EndTime = e.clock.WallNow()
		_ = os.RemoveAll(stageDir)
		return Result{Execution: execution}, critFailure
	}

	manifest := Manifest{
		BackupID:   execution.ID,
		PlanID:     plan.ID,
		Components: results,
		Compressed: plan.Compression,
		Encrypted:  plan.Encryption,
		CreatedAt:  e.clock.WallNow(),
	}

	backupPath := stageDir
	if plan.Compression {
		archivePath, err := compressDir(stageDir)
		if err != nil {
			execution.Status = Failed
			return Result{Execution: execution}, errors.AdapterFailure("backup-compress", err)
		}
		backupPath = archivePath
	}

	if plan.Encryption {
		encrypted, checksum, err := e.encryptPath(backupPath)
		if err != nil {
			execution.Status = Failed
			return Result{Execution: execution}, err
		}
		backupPath = encrypted
		manifest.Checksum = checksum
	} else if plan.Compression {
		sum, err := checksumFile(backupPath)
		if err == nil {
			manifest.Checksum = sum
		}
	}

	if plan.Verification {
		verified, err := e.verify(backupPath, manifest.Checksum)
		manifest.Verified = verified
		if err != nil {
			e.logger.WithError(err).Warn("backup verification failed")
		}
	}

	var remoteLocation string
	if e.cfg.Uploader != nil {
		loc, err := e.cfg.Uploader.Upload(ctx, backupPath, filepath.Base(backupPath))
		if err != nil {
			e.logger.WithError(err).Warn("remote backup upload failed")
		} else {
			remoteLocation = loc
		}
	}

	execution.Status = Completed
	execution.EndTime = e.clock.WallNow()
	execution.BackupPath = backupPath

	info, statErr := os.Stat(backupPath)
	size := int64(0)
	if statErr == nil {
		size = info.Size()
	}

	meta := Metadata{
		BackupID:              execution.ID,
		BackupPath:            backupPath,
		Manifest:              manifest,
		SizeBytes:             size,
		Compressed:            plan.Compression,
		Encrypted:             plan.Encryption,
		RemoteStorageLocation: remoteLocation,
		IntegrityVerified:     manifest.Verified,
	}

	if e.registry != nil {
		if err := e.registry.Save(ctx, meta); err != nil {
			return Result{Execution: execution, Metadata: meta}, errors.DatabaseError("save-backup-metadata", err)
		}
	}

	return Result{Execution: execution, Metadata: meta}, nil
}

// runComponents executes each plan component in order. A critical
// component's failure aborts immediately; non-critical failures are
// aggregated with go-multierror and recorded in the returned results but
// do not fail the execution.
func (e *Engine) runComponents(ctx context.Context, plan Plan, stageDir string) ([]ComponentResult, error) {
	var nonCritical *multierror.Error
	results := make([]ComponentResult, 0, len(plan.Components))

	for _, name := range plan.Components {
		select {
		case <-ctx.Done():
			return results, errors.Cancelled("backup-component-" + name)
		default:
		}

		adapter, ok := e.adapters[name]
		if !ok {
			err := fmt.Errorf("unrecognized component %q", name)
			if IsCritical(name) {
				return results, errors.AdapterFailure(name, err)
			}
			nonCritical = multierror.Append(nonCritical, err)
			results = append(results, ComponentResult{Component: name, Success: false, Error: err.Error()})
			continue
		}

		size, err := adapter.Backup(ctx, stageDir)
		if err != nil {
			if IsCritical(name) {
				return results, errors.AdapterFailure(name, err)
			}
			nonCritical = multierror.Append(nonCritical, err)
			results = append(results, ComponentResult{Component: name, Success: false, Error: err.Error()})
			continue
		}
		results = append(results, ComponentResult{Component: name, Success: true, SizeBytes: size})
	}

	if nonCritical != nil && nonCritical.Len() > 0 {
		e.logger.WithError(nonCritical).Warn("non-critical backup components failed")
	}
	return results, nil
}

func (e *Engine) encryptPath(path string) (encryptedPath, checksum string, err error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return "", "", errors.AdapterFailure("backup-read", readErr)
	}
	sealed, sealErr := encryptArchive(data, e.cfg.EncryptionKey)
	if sealErr != nil {
		return "", "", sealErr
	}
	encryptedPath = path + ".enc"
	if err := os.WriteFile(encryptedPath, sealed, 0o600); err != nil {
		return "", "", errors.AdapterFailure("backup-write-encrypted", err)
	}
	if err := os.Remove(path); err != nil {
		return "", "", errors.AdapterFailure("backup-remove-plaintext", err)
	}
	return encryptedPath, checksumBytes(sealed), nil
}

// verify confirms the backup artifact exists, is non-empty, readable, and
// (when a checksum is recorded) matches it.
func (e *Engine) verify(path, expectedChecksum string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, errors.IntegrityFailure("backup artifact missing", err)
	}
	if info.Size() == 0 {
		return false, errors.IntegrityFailure("backup artifact empty", nil)
	}
	if expectedChecksum == "" {
		return true, nil
	}
	actual, err := checksumFile(path)
	if err != nil {
		return false, errors.IntegrityFailure("backup artifact unreadable", err)
	}
	if actual != expectedChecksum {
		return false, errors.IntegrityFailure("backup checksum mismatch", nil)
	}
	return true, nil
}

// VerifyIntegrity re-runs verification against a previously recorded
// manifest, used by the administrative endpoint and the DR orchestrator's
// post-nightly-backup check.
func (e *Engine) VerifyIntegrity(ctx context.Context, backupID string) (bool, error) {
	meta, err := e.registry.Get(ctx, backupID)
	if err != nil {
		return false, err
	}
	return e.verify(meta.BackupPath, meta.Manifest.Checksum)
}

// ListMetadata returns every registered backup's metadata, used by the
// administrative history endpoint and the DR orchestrator's status report.
func (e *Engine) ListMetadata(ctx context.Context) ([]Metadata, error) {
	if e.registry == nil {
		return nil, nil
	}
	return e.registry.List(ctx)
}

// GetMetadata looks up a single backup's recorded metadata, used by the
// administrative "backup plan status" endpoint.
func (e *Engine) GetMetadata(ctx context.Context, backupID string) (Metadata, error) {
	if e.registry == nil {
		return Metadata{}, errors.NotFound("backup", backupID)
	}
	return e.registry.Get(ctx, backupID)
}

// PruneOlderThan deletes metadata (and the underlying artifact, best
// effort) for backups created before retentionDays ago. It is the
// scheduled sweep the DR orchestrator runs after each nightly backup. A
// retentionDays of zero or less prunes nothing.
func (e *Engine) PruneOlderThan(ctx context.Context, retentionDays int) (int, error) {
	if e.registry == nil || retentionDays <= 0 {
		return 0, nil
	}
	cutoff := e.clock.WallNow().AddDate(0, 0, -retentionDays)
	all, err := e.registry.List(ctx)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, meta := range all {
		if meta.Manifest.CreatedAt.After(cutoff) {
			continue
		}
		_ = os.RemoveAll(meta.BackupPath)
		if err := e.registry.Delete(ctx, meta.BackupID); err != nil {
			continue
		}
		pruned++
	}
	return pruned, nil
}

// Restore reverses Execute, guided by the backup's manifest. It refuses to
// run if integrity verification fails.
func (e *Engine) Restore(ctx context.Context, backupID string) error {
	meta, err := e.registry.Get(ctx, backupID)
	if err != nil {
		return err
	}

	verified, err := e.verify(meta.BackupPath, meta.Manifest.Checksum)
	if err != nil || !verified {
		return errors.IntegrityFailure("refusing to restore unverified backup", err)
	}

	path := meta.BackupPath
	if meta.Encrypted {
		sealed, readErr := os.ReadFile(path)
		if readErr != nil {
			return errors.AdapterFailure("backup-read-encrypted", readErr)
		}
		plain, decErr := decryptArchive(sealed, e.cfg.EncryptionKey)
		if decErr != nil {
			return decErr
		}
		tmp := path + ".decrypted"
		if err := os.WriteFile(tmp, plain, 0o600); err != nil {
			return errors.AdapterFailure("backup-write-decrypted", err)
		}
		defer os.Remove(tmp)
		path = tmp
	}

	restoreDir := path
	if meta.Compressed {
		dir, err := decompressArchive(path)
		if err != nil {
			return errors.AdapterFailure("backup-decompress", err)
		}
		defer os.RemoveAll(dir)
		restoreDir = dir
	}

	for _, comp := range meta.Manifest.Components {
		if !comp.Success {
			continue
		}
		adapter, ok := e.adapters[comp.Component]
		if !ok {
			continue
		}
		if err := adapter.Restore(ctx, restoreDir); err != nil {
			return errors.AdapterFailure("restore-"+comp.Component, err)
		}
	}
	return nil
}
