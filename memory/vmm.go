package memory

import (
	"sync"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
	"github.com/evanphx/kernelino/abi"
	"github.com/evanphx/kernelino/log"
	"github.com/pkg/errors"
)

const PageSize = 4096

var (
	ErrNoFreeFrame   = errors.Wrap(abi.ResourceExhausted, "no free frame")
	ErrUnmappedPage  = errors.Wrap(abi.InvariantViolation, "no page table entry")
	ErrMissingFrame  = errors.Wrap(abi.InvariantViolation, "no frame backs physical address")
	ErrEmptyFrame    = errors.Wrap(abi.InvariantViolation, "page has no content")
	ErrDuplicateFree = errors.Wrap(abi.InvariantViolation, "address freed twice")
)

// Virtual addresses are handed out from one process-wide counter so that two
// VMMs in the same run never hand out the same address either.
var nextVirtualAddress atomic.Uint64

func nextAddress() uint64 {
	return nextVirtualAddress.Add(PageSize)
}

type Frame struct {
	ID       uint64
	PhysAddr uint64
	InUse    bool
	Content  []byte
}

type PageTableEntry struct {
	VirtAddr uint64
	PhysAddr uint64
	Flags    Flags
}

type Stats struct {
	Total  uint64
	Free   uint64
	Frames int
	InUse  int
	Mapped int
}

type VMM struct {
	mu sync.Mutex

	total uint64
	free  uint64
	inUse int

	frames    []Frame
	pageTable map[uint64]PageTableEntry
}

// NewVMM builds a frame pool covering total bytes. Any remainder smaller than
// a page is not addressable.
func NewVMM(total uint64) *VMM {
	count := total / PageSize

	vmm := &VMM{
		total:     count * PageSize,
		free:      count * PageSize,
		frames:    make([]Frame, count),
		pageTable: make(map[uint64]PageTableEntry),
	}

	for i := range vmm.frames {
		vmm.frames[i] = Frame{
			ID:       uint64(i),
			PhysAddr: uint64(i) * PageSize,
		}
	}

	log.L.Debug("vmm-init", "total", vmm.total, "frames", count)

	return vmm
}

func (vmm *VMM) TotalMemory() uint64 {
	return vmm.total
}

func (vmm *VMM) FreeMemory() uint64 {
	vmm.mu.Lock()
	defer vmm.mu.Unlock()

	return vmm.free
}

func (vmm *VMM) InUseFrames() int {
	vmm.mu.Lock()
	defer vmm.mu.Unlock()

	return vmm.inUse
}

func (vmm *VMM) Stats() Stats {
	vmm.mu.Lock()
	defer vmm.mu.Unlock()

	return Stats{
		Total:  vmm.total,
		Free:   vmm.free,
		Frames: len(vmm.frames),
		InUse:  vmm.inUse,
		Mapped: len(vmm.pageTable),
	}
}

// Lookup returns the page table entry for addr.
func (vmm *VMM) Lookup(addr uint64) (PageTableEntry, bool) {
	vmm.mu.Lock()
	defer vmm.mu.Unlock()

	pte, ok := vmm.pageTable[addr]
	return pte, ok
}

// AllocatePage maps one fresh virtual address onto the first free frame.
func (vmm *VMM) AllocatePage() (uint64, uint64, error) {
	vmm.mu.Lock()
	defer vmm.mu.Unlock()

	addr, _, err := vmm.allocate()
	if err != nil {
		return 0, 0, err
	}

	return addr, PageSize, nil
}

func (vmm *VMM) allocate() (uint64, *Frame, error) {
	for i := range vmm.frames {
		frame := &vmm.frames[i]
		if frame.InUse {
			continue
		}

		addr := nextAddress()

		vmm.pageTable[addr] = PageTableEntry{
			VirtAddr: addr,
			PhysAddr: frame.PhysAddr,
			Flags:    DefaultFlags,
		}

		frame.InUse = true
		vmm.inUse++
		vmm.free -= PageSize

		log.L.Trace("vmm-allocate-page", "vaddr", addr, "frame", frame.ID)

		return addr, frame, nil
	}

	return 0, nil, errors.Wrapf(ErrNoFreeFrame, "total=%d", vmm.total)
}

// DeallocatePages unmaps every address and returns its frame to the pool.
// The whole list is checked first, so an unknown address frees nothing.
func (vmm *VMM) DeallocatePages(addrs []uint64) error {
	vmm.mu.Lock()
	defer vmm.mu.Unlock()

	return vmm.deallocate(addrs)
}

func (vmm *VMM) deallocate(addrs []uint64) error {
	seen := make(map[uint64]struct{}, len(addrs))

	for _, addr := range addrs {
		if _, ok := seen[addr]; ok {
			return errors.Wrapf(ErrDuplicateFree, "vaddr=%#x", addr)
		}
		seen[addr] = struct{}{}

		pte, ok := vmm.pageTable[addr]
		if !ok {
			return errors.Wrapf(ErrUnmappedPage, "deallocate vaddr=%#x", addr)
		}

		if _, err := vmm.frameAt(pte.PhysAddr); err != nil {
			return err
		}
	}

	for _, addr := range addrs {
		pte := vmm.pageTable[addr]
		delete(vmm.pageTable, addr)

		frame, _ := vmm.frameAt(pte.PhysAddr)
		frame.InUse = false
		frame.Content = nil

		vmm.inUse--
		vmm.free += PageSize

		log.L.Trace("vmm-deallocate-page", "vaddr", addr, "frame", frame.ID)
	}

	return nil
}

func (vmm *VMM) frameAt(phys uint64) (*Frame, error) {
	idx := phys / PageSize
	if phys%PageSize != 0 || idx >= uint64(len(vmm.frames)) {
		return nil, errors.Wrapf(ErrMissingFrame, "paddr=%#x", phys)
	}

	return &vmm.frames[idx], nil
}

// AllocateBytes spreads buf over as many pages as it needs, in order. If the
// pool runs dry half way the pages already taken are released again.
func (vmm *VMM) AllocateBytes(buf []byte) ([]uint64, error) {
	vmm.mu.Lock()
	defer vmm.mu.Unlock()

	addrs := make([]uint64, 0, (len(buf)+PageSize-1)/PageSize)

	for len(buf) > 0 {
		n := len(buf)
		if n > PageSize {
			n = PageSize
		}

		addr, frame, err := vmm.allocate()
		if err != nil {
			if rerr := vmm.deallocate(addrs); rerr != nil {
				log.L.Error("vmm-rollback-failed", "error", rerr)
			}

			return nil, err
		}

		frame.Content = make([]byte, n)
		copy(frame.Content, buf[:n])

		addrs = append(addrs, addr)
		buf = buf[n:]
	}

	return addrs, nil
}

// GetBytes concatenates the content behind addrs in the order given and
// truncates the result to size.
func (vmm *VMM) GetBytes(addrs []uint64, size uint64) ([]byte, error) {
	vmm.mu.Lock()
	defer vmm.mu.Unlock()

	out := make([]byte, 0, min(size, uint64(len(addrs))*PageSize))

	for _, addr := range addrs {
		if uint64(len(out)) >= size {
			break
		}

		pte, ok := vmm.pageTable[addr]
		if !ok {
			return nil, errors.Wrapf(ErrUnmappedPage, "read vaddr=%#x", addr)
		}

		frame, err := vmm.frameAt(pte.PhysAddr)
		if err != nil {
			return nil, err
		}

		if frame.Content == nil {
			return nil, errors.Wrapf(ErrEmptyFrame, "vaddr=%#x", addr)
		}

		out = append(out, frame.Content...)
	}

	if uint64(len(out)) > size {
		out = out[:size]
	}

	return out, nil
}

// Dump renders the page table for debugging.
func (vmm *VMM) Dump() string {
	vmm.mu.Lock()
	defer vmm.mu.Unlock()

	entries := make([]PageTableEntry, 0, len(vmm.pageTable))
	for _, pte := range vmm.pageTable {
		entries = append(entries, pte)
	}

	sortEntries(entries)

	return spew.Sdump(entries)
}
