package modestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/mitchellh/go-ps"
	"golang.org/x/sys/unix"

	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/logger"
	"github.com/vst-controls/green-machine/internal/repository/settings"
)

// File layout. The file is exactly one record; all words are little-endian
// and 4-byte aligned so they can be read and written atomically through
// the shared mapping.
const (
	fileSize = 16

	offsetMagic      = 0
	offsetGeneration = 4
	offsetWriterPID  = 8
	offsetMode       = 12

	// magic identifies an initialized mode file ("VMOD").
	magic = 0x564D_4F44
)

// fallbackKey is the settings key holding the durable copy of the mode.
const fallbackKey = "mode_fallback"

// ErrStore is returned when neither the shared file nor the durable
// fallback can record the mode.
var ErrStore = errors.New("mode store unavailable")

// Store publishes the current operating mode to every process on the box
// through a shared memory-mapped file, with a durable copy in the settings
// store so the mode survives reboots and a torn shared file.
type Store struct {
	mu       sync.Mutex
	file     *os.File
	data     []byte
	fallback settings.Store

	// lastKnown is the in-memory copy of the last mode this process
	// observed, used when both backends fail.
	lastKnown atomic.Uint32
}

// Open maps the shared mode file at path, creating and initializing it when
// absent. A freshly initialized file is seeded from the durable fallback.
func Open(ctx context.Context, path string, fallback settings.Store) (*Store, error) {
	file, err := os.OpenFile(filepath.Clean(path), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open mode file: %w", err)
	}

	if err = file.Truncate(fileSize); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("size mode file: %w", err)
	}

	data, err := unix.Mmap(int(file.Fd()), 0, fileSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("map mode file: %w", err)
	}

	s := &Store{
		file:     file,
		data:     data,
		fallback: fallback,
	}

	if binary.LittleEndian.Uint32(data[offsetMagic:]) != magic {
		s.initialize(ctx)
	} else {
		s.adoptExisting(ctx)
	}

	return s, nil
}

// initialize stamps a fresh file, seeding the mode from the durable fallback.
func (s *Store) initialize(ctx context.Context) {
	mode := s.fallbackMode(ctx)

	binary.LittleEndian.PutUint32(s.data[offsetGeneration:], 0)
	s.storeWord(offsetWriterPID, uint32(os.Getpid()))
	s.storeWord(offsetMode, mode.StoreCode())
	// Magic goes last so concurrent readers never see a half-stamped file.
	s.storeWord(offsetMagic, magic)

	s.lastKnown.Store(mode.StoreCode())

	logger.InfoKV(ctx, "initialized shared mode file", "mode", mode)
}

// adoptExisting validates an already-stamped file and takes over from a
// dead previous writer.
func (s *Store) adoptExisting(ctx context.Context) {
	code := s.loadWord(offsetMode)
	if _, err := gm.ModeFromStoreCode(code); err != nil {
		logger.WarnKV(ctx, "shared mode file holds unknown mode, resetting to rest", "code", code)
		s.storeWord(offsetMode, gm.ModeRest.StoreCode())
		code = gm.ModeRest.StoreCode()
	}

	s.lastKnown.Store(code)

	pid := int(s.loadWord(offsetWriterPID))
	if pid == 0 || pid == os.Getpid() {
		return
	}

	proc, err := ps.FindProcess(pid)
	if err == nil && proc == nil {
		logger.InfoKV(ctx, "previous mode writer is gone, taking over", "stale_pid", pid)
		s.storeWord(offsetWriterPID, uint32(os.Getpid()))
	}
}

// Get returns the current mode. A torn or unavailable shared file falls
// back to the durable copy, then to the last mode this process observed.
// Get never fails: with no information at all it reports the safe rest mode.
func (s *Store) Get(ctx context.Context) gm.Mode {
	if s.data != nil {
		code := s.loadWord(offsetMode)
		if mode, err := gm.ModeFromStoreCode(code); err == nil {
			s.lastKnown.Store(code)
			return mode
		}

		logger.WarnKV(ctx, "shared mode file unreadable, using fallback", "code", s.loadWord(offsetMode))
	}

	return s.fallbackMode(ctx)
}

// Set records the mode in the shared file and the durable fallback.
// It fails only when neither backend accepted the write.
func (s *Store) Set(ctx context.Context, mode gm.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %d", gm.ErrUnknownMode, uint8(mode))
	}

	s.lastKnown.Store(mode.StoreCode())

	var sharedErr error

	s.mu.Lock()
	if s.data != nil {
		s.storeWord(offsetGeneration, s.loadWord(offsetGeneration)+1)
		s.storeWord(offsetWriterPID, uint32(os.Getpid()))
		s.storeWord(offsetMode, mode.StoreCode())
	} else {
		sharedErr = ErrStore
	}
	s.mu.Unlock()

	durableErr := s.fallback.Set(ctx, fallbackKey, mode.String())
	if durableErr != nil {
		logger.ErrorKV(ctx, "durable mode write failed", "mode", mode, "error", durableErr)
	}

	if sharedErr != nil && durableErr != nil {
		return fmt.Errorf("%w: %v", ErrStore, durableErr)
	}

	return nil
}

// Close unmaps and closes the shared file. The durable fallback is owned
// by the caller and stays open.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return nil
	}

	err := unix.Munmap(s.data)
	s.data = nil

	if closeErr := s.file.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("close mode file: %w", err)
	}

	return nil
}

// fallbackMode reads the durable copy, then the in-process copy,
// defaulting to rest.
func (s *Store) fallbackMode(ctx context.Context) gm.Mode {
	raw, found, err := s.fallback.Get(ctx, fallbackKey)
	if err == nil && found {
		if mode, parseErr := gm.ParseMode(raw); parseErr == nil {
			return mode
		}
	}

	if err != nil {
		logger.WarnKV(ctx, "durable mode read failed", "error", err)
	}

	if mode, convErr := gm.ModeFromStoreCode(s.lastKnown.Load()); convErr == nil {
		return mode
	}

	return gm.ModeRest
}

// loadWord atomically reads the 4-byte word at the given offset.
func (s *Store) loadWord(offset int) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&s.data[offset])))
}

// storeWord atomically writes the 4-byte word at the given offset.
func (s *Store) storeWord(offset int, value uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&s.data[offset])), value)
}
