package gpt

import (
	"errors"
	"testing"

	uuid "github.com/satori/go.uuid"

	"github.com/blocklayer/blocklayer/blockdev"
	"github.com/blocklayer/blocklayer/blockdev/memdev"
)

func newTestDevice() blockdev.Device {
	return memdev.New(512, 128)
}

func TestEmptyDeviceLoadsAsUnformatted(t *testing.T) {
	d, err := Load(newTestDevice())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d != nil {
		t.Fatal("expected nil Disk for an unformatted device")
	}
}

func TestFormatThenLoad(t *testing.T) {
	device := newTestDevice()
	formatted, err := Format(device, DefaultEntriesCount)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	holes := formatted.Holes()
	if len(holes) != 1 {
		t.Fatalf("expected one hole after formatting, got %d", len(holes))
	}

	loaded, err := Load(device)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a Disk after formatting")
	}
	if loaded.Guid() != formatted.Guid() {
		t.Fatal("guid changed across reload")
	}
	if len(loaded.Holes()) != 1 || loaded.Holes()[0] != holes[0] {
		t.Fatal("hole layout changed across reload")
	}
}

func TestAddPartitionThenReload(t *testing.T) {
	device := newTestDevice()
	disk, err := Format(device, DefaultEntriesCount)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	hole := disk.Holes()[0]
	typeGUID := uuid.NewV4()
	if err := disk.Add(typeGUID, hole, 0, "foo"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	parts := disk.Partitions()
	if len(parts) != 1 {
		t.Fatalf("expected 1 partition, got %d", len(parts))
	}
	if parts[0].Name() != "foo" {
		t.Fatalf("Name() = %q, want foo", parts[0].Name())
	}
	if parts[0].Kind() != typeGUID {
		t.Fatal("Kind() does not match the type GUID passed to Add")
	}

	reloaded, err := Load(device)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := reloaded.Partitions()
	if len(got) != 1 || got[0].Name() != "foo" || got[0].Kind() != typeGUID {
		t.Fatal("partition did not survive reload")
	}
}

func TestZeroingOneHeaderCopyStillLoads(t *testing.T) {
	device := newTestDevice()
	disk, err := Format(device, DefaultEntriesCount)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	guid := disk.Guid()

	if err := device.Set(1, make([]byte, 512)); err != nil {
		t.Fatalf("zeroing primary: %v", err)
	}
	reloaded, err := Load(device)
	if err != nil {
		t.Fatalf("Load after zeroing primary: %v", err)
	}
	if reloaded.Guid() != guid {
		t.Fatal("guid changed after losing the primary copy")
	}
}

func TestZeroingSecondaryHeaderCopyStillLoads(t *testing.T) {
	device := newTestDevice()
	disk, err := Format(device, DefaultEntriesCount)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	guid := disk.Guid()

	if err := device.Set(device.Len()-1, make([]byte, 512)); err != nil {
		t.Fatalf("zeroing secondary: %v", err)
	}
	reloaded, err := Load(device)
	if err != nil {
		t.Fatalf("Load after zeroing secondary: %v", err)
	}
	if reloaded.Guid() != guid {
		t.Fatal("guid changed after losing the secondary copy")
	}
}

func TestZeroingBothHeaderCopiesLosesTheDisk(t *testing.T) {
	device := newTestDevice()
	if _, err := Format(device, DefaultEntriesCount); err != nil {
		t.Fatalf("Format: %v", err)
	}

	if err := device.Set(1, make([]byte, 512)); err != nil {
		t.Fatalf("zeroing primary: %v", err)
	}
	if err := device.Set(device.Len()-1, make([]byte, 512)); err != nil {
		t.Fatalf("zeroing secondary: %v", err)
	}

	d, err := Load(device)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d != nil {
		t.Fatal("expected nil Disk once both copies are gone")
	}
}

func TestSingleByteCorruptionRecoversFromPeer(t *testing.T) {
	device := newTestDevice()
	disk, err := Format(device, DefaultEntriesCount)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	guid := disk.Guid()

	raw, err := device.Get(1)
	if err != nil {
		t.Fatalf("Get(1): %v", err)
	}
	raw[32] ^= 0xff
	if err := device.Set(1, raw); err != nil {
		t.Fatalf("Set(1): %v", err)
	}

	reloaded, err := Load(device)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Guid() != guid {
		t.Fatal("guid changed after single-byte corruption of one copy")
	}
}

func TestCorruptingBothCopiesAtSameByteIsCorrupted(t *testing.T) {
	device := newTestDevice()
	if _, err := Format(device, DefaultEntriesCount); err != nil {
		t.Fatalf("Format: %v", err)
	}

	length := device.Len()
	for _, idx := range []uint64{1, length - 1} {
		raw, err := device.Get(idx)
		if err != nil {
			t.Fatalf("Get(%d): %v", idx, err)
		}
		raw[32] ^= 0xff
		if err := device.Set(idx, raw); err != nil {
			t.Fatalf("Set(%d): %v", idx, err)
		}
	}

	if _, err := Load(device); !errors.Is(err, blockdev.ErrCorrupted) {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}
}

func TestAddOverlappingPartitionRejectedAndRolledBack(t *testing.T) {
	device := newTestDevice()
	disk, err := Format(device, DefaultEntriesCount)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	hole := disk.Holes()[0]
	if err := disk.Add(uuid.NewV4(), blockdev.Range{First: hole.First, Last: hole.First + 9}, 0, "a"); err != nil {
		t.Fatalf("Add first partition: %v", err)
	}

	overlap := blockdev.Range{First: hole.First + 5, Last: hole.First + 15}
	if err := disk.Add(uuid.NewV4(), overlap, 0, "b"); !errors.Is(err, blockdev.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds for overlapping add, got %v", err)
	}
	if len(disk.Partitions()) != 1 {
		t.Fatal("failed add mutated the in-memory entry list")
	}
}

func TestAddDuplicatePartitionGUIDRejected(t *testing.T) {
	device := newTestDevice()
	disk, err := Format(device, DefaultEntriesCount)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	hole := disk.Holes()[0]
	first := blockdev.Range{First: hole.First, Last: hole.First + 9}
	second := blockdev.Range{First: hole.First + 10, Last: hole.First + 19}

	sharedGUID := uuid.NewV4()
	a, err := newEntry(uuid.NewV4(), sharedGUID, first, 0, "a")
	if err != nil {
		t.Fatalf("newEntry a: %v", err)
	}
	b, err := newEntry(uuid.NewV4(), sharedGUID, second, 0, "b")
	if err != nil {
		t.Fatalf("newEntry b: %v", err)
	}

	before := append([]Entry{}, disk.entries...)
	err = disk.save(&disk.usable, append(append([]Entry{}, disk.entries...), a, b))
	if !errors.Is(err, blockdev.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate partition guid, got %v", err)
	}
	if len(disk.entries) != len(before) {
		t.Fatal("failed save mutated the in-memory entry list")
	}
}

func TestPartitionIOTranslatesByOffset(t *testing.T) {
	device := newTestDevice()
	disk, err := Format(device, DefaultEntriesCount)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	hole := disk.Holes()[0]
	data := blockdev.Range{First: hole.First, Last: hole.First + 3}
	if err := disk.Add(uuid.NewV4(), data, 0, "p"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	part := disk.Partitions()[0]
	block := make([]byte, 512)
	for i := range block {
		block[i] = 0x5a
	}
	if err := part.Set(1, block); err != nil {
		t.Fatalf("Set: %v", err)
	}

	direct, err := device.Get(data.First + 1)
	if err != nil {
		t.Fatalf("Get direct: %v", err)
	}
	if string(direct) != string(block) {
		t.Fatal("partition write did not land at first+index on the backing device")
	}
}
