// Package pin provides crash-safe, scoped manifest mutation for isolated
// build steps. Internal dependency references are temporarily replaced with
// exact version pins, and the manifest is restored byte-for-byte on every
// exit path, including termination signals.
package pin

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/capstan/capstan/pkg/logger"
)

// BackupSuffix marks the transient sibling copy of a mutated manifest
const BackupSuffix = ".capstan-backup"

// Session is one scoped manifest mutation. Three independent triggers all
// run the same restore-and-verify action: the scope's own guaranteed
// cleanup, the process-exit hooks, and a termination-signal handler that
// restores and then re-raises the signal through default handling.
type Session struct {
	manifestPath string
	backupPath   string
	digest       [sha256.Size]byte
	log          logger.Logger

	sigChan chan os.Signal
	reraise func(os.Signal)
	once    sync.Once
}

var (
	exitMu    sync.Mutex
	exitHooks = make(map[*Session]struct{})
)

// RunExitHooks restores every still-open session. Wire it into the process
// manager's shutdown path so an interrupted run never leaves a mutated
// manifest behind.
func RunExitHooks() {
	exitMu.Lock()
	sessions := make([]*Session, 0, len(exitHooks))
	for s := range exitHooks {
		sessions = append(sessions, s)
	}
	exitMu.Unlock()

	for _, s := range sessions {
		s.Restore()
	}
}

// BackupPath returns the sibling backup path for a manifest
func BackupPath(manifestPath string) string {
	ext := filepath.Ext(manifestPath)
	return strings.TrimSuffix(manifestPath, ext) + BackupSuffix
}

// Apply starts a pin session: digests the manifest, writes the backup, and
// rewrites matching dependency entries to exact pins. The caller must
// ensure Restore runs; prefer With, which guarantees it.
func Apply(manifestPath string, pins map[string]string, log logger.Logger) (*Session, error) {
	content, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	s := &Session{
		manifestPath: manifestPath,
		backupPath:   BackupPath(manifestPath),
		digest:       sha256.Sum256(content),
		log:          log,
		reraise:      reraiseSignal,
	}

	if err := os.WriteFile(s.backupPath, content, 0644); err != nil {
		return nil, fmt.Errorf("failed to write manifest backup: %w", err)
	}

	rewritten := Rewrite(content, pins)
	if err := os.WriteFile(manifestPath, rewritten, 0644); err != nil {
		os.Remove(s.backupPath)
		return nil, fmt.Errorf("failed to rewrite manifest: %w", err)
	}

	// Trigger 1: process-exit hook
	exitMu.Lock()
	exitHooks[s] = struct{}{}
	exitMu.Unlock()

	// Trigger 2: termination signals, restore then re-raise
	s.sigChan = make(chan os.Signal, 1)
	signal.Notify(s.sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		sig, ok := <-s.sigChan
		if !ok {
			return
		}
		s.handleSignal(sig)
	}()

	return s, nil
}

// With runs fn with the manifest's internal dependencies pinned, restoring
// the original bytes before returning no matter how fn exits. Trigger 3.
func With(manifestPath string, pins map[string]string, log logger.Logger, fn func() error) error {
	s, err := Apply(manifestPath, pins, log)
	if err != nil {
		return err
	}
	defer s.Restore()

	return fn()
}

// Restore copies the backup over the live manifest, verifies the digest
// against the pre-mutation value, and unregisters all triggers. A digest
// mismatch is logged as an error but does not fail the restore: by this
// point the process may be mid-termination, and visibility is the priority.
func (s *Session) Restore() {
	s.once.Do(s.restore)
}

func (s *Session) restore() {
	// Unregister triggers first so nothing fires twice
	exitMu.Lock()
	delete(exitHooks, s)
	exitMu.Unlock()

	if s.sigChan != nil {
		signal.Stop(s.sigChan)
		close(s.sigChan)
	}

	content, err := os.ReadFile(s.backupPath)
	if err != nil {
		s.log.Error("Failed to read manifest backup during restore",
			logger.WithField("manifest", s.manifestPath),
			logger.WithField("error", err))
		return
	}

	if err := os.WriteFile(s.manifestPath, content, 0644); err != nil {
		s.log.Error("Failed to restore manifest",
			logger.WithField("manifest", s.manifestPath),
			logger.WithField("error", err))
		return
	}

	if digest := sha256.Sum256(content); !bytes.Equal(digest[:], s.digest[:]) {
		s.log.Error("Manifest digest mismatch after restore",
			logger.WithField("manifest", s.manifestPath))
	}

	if err := os.Remove(s.backupPath); err != nil && !os.IsNotExist(err) {
		s.log.Warn("Failed to remove manifest backup",
			logger.WithField("backup", s.backupPath),
			logger.WithField("error", err))
	}
}

// handleSignal restores every open session and re-delivers the signal
// through the platform's default handling, so process supervision behaves
// normally. With concurrent builds each session watches for signals, and
// whichever handler fires first must not kill the process while sibling
// sessions still hold mutated manifests.
func (s *Session) handleSignal(sig os.Signal) {
	s.log.Warn("Received signal during pinned build, restoring manifests",
		logger.WithField("signal", sig),
		logger.WithField("manifest", s.manifestPath))
	RunExitHooks()
	s.reraise(sig)
}

func reraiseSignal(sig os.Signal) {
	sysSig, ok := sig.(syscall.Signal)
	if !ok {
		sysSig = syscall.SIGTERM
	}
	signal.Reset(sysSig)
	syscall.Kill(os.Getpid(), sysSig)
}
