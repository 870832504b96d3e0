package hephaistos

import (
	"sort"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"golang.org/x/exp/slog"
)

// MemoryLocation selects the memory properties backing a resource.
type MemoryLocation int

const (
	// MemoryGpuOnly is device-local memory not visible to the host.
	MemoryGpuOnly MemoryLocation = iota
	// MemoryCpuToGpu is host-visible memory for uploads.
	MemoryCpuToGpu
	// MemoryGpuToCpu is host-visible memory for readback.
	MemoryGpuToCpu
)

func (l MemoryLocation) String() string {
	switch l {
	case MemoryGpuOnly:
		return "GpuOnly"
	case MemoryCpuToGpu:
		return "CpuToGpu"
	case MemoryGpuToCpu:
		return "GpuToCpu"
	}
	return "Unknown"
}

const hostVisibleCoherent = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)

func (l MemoryLocation) propertyFlags() (required, preferred vk.MemoryPropertyFlags) {
	switch l {
	case MemoryCpuToGpu:
		return hostVisibleCoherent, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	case MemoryGpuToCpu:
		return hostVisibleCoherent, vk.MemoryPropertyFlags(vk.MemoryPropertyHostCachedBit)
	default:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit), 0
	}
}

// chooseMemoryType returns the first type allowed by typeBits that has
// required|preferred, falling back to the first that has required.
func chooseMemoryType(types []vk.MemoryPropertyFlags, typeBits uint32, required, preferred vk.MemoryPropertyFlags) (uint32, bool) {
	find := func(want vk.MemoryPropertyFlags) (uint32, bool) {
		for i, flags := range types {
			if typeBits&(1<<uint(i)) == 0 {
				continue
			}
			if flags&want == want {
				return uint32(i), true
			}
		}
		return 0, false
	}
	if preferred != 0 {
		if i, ok := find(required | preferred); ok {
			return i, true
		}
	}
	return find(required)
}

func memoryTypeFlags(props vk.PhysicalDeviceMemoryProperties) []vk.MemoryPropertyFlags {
	props.Deref()
	types := make([]vk.MemoryPropertyFlags, props.MemoryTypeCount)
	for i := range types {
		props.MemoryTypes[i].Deref()
		types[i] = props.MemoryTypes[i].PropertyFlags
	}
	return types
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	m := v % align
	if m == 0 {
		return v
	}
	return v - m + align
}

type freeRange struct {
	offset, size uint64
}

// offsetAllocator hands out aligned ranges of a block, first fit. Free
// ranges are kept sorted by offset and merged with their neighbours.
type offsetAllocator struct {
	size uint64
	used uint64
	free []freeRange
}

func newOffsetAllocator(size uint64) *offsetAllocator {
	return &offsetAllocator{size: size, free: []freeRange{{0, size}}}
}

func (a *offsetAllocator) allocate(size, align uint64) (uint64, bool) {
	if size == 0 {
		return 0, false
	}
	for i, r := range a.free {
		start := alignUp(r.offset, align)
		end := r.offset + r.size
		if start+size > end {
			continue
		}
		var pieces []freeRange
		if start > r.offset {
			pieces = append(pieces, freeRange{r.offset, start - r.offset})
		}
		if start+size < end {
			pieces = append(pieces, freeRange{start + size, end - start - size})
		}
		a.free = append(a.free[:i], append(pieces, a.free[i+1:]...)...)
		a.used += size
		return start, true
	}
	return 0, false
}

func (a *offsetAllocator) release(offset, size uint64) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].offset > offset })
	a.free = append(a.free, freeRange{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = freeRange{offset, size}
	a.used -= size

	// merge with next, then with previous
	if i+1 < len(a.free) && a.free[i].offset+a.free[i].size == a.free[i+1].offset {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].offset+a.free[i-1].size == a.free[i].offset {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

func (a *offsetAllocator) empty() bool {
	return a.used == 0
}

// memoryBackend is the device memory the allocator carves up.
type memoryBackend interface {
	allocate(size uint64, memoryType uint32) (vk.DeviceMemory, error)
	free(mem vk.DeviceMemory)
	mapMemory(mem vk.DeviceMemory, size uint64) ([]byte, error)
}

type deviceMemory struct {
	device vk.Device
}

func (d deviceMemory) allocate(size uint64, memoryType uint32) (vk.DeviceMemory, error) {
	var mem vk.DeviceMemory
	ret := vk.AllocateMemory(d.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: memoryType,
	}, nil, &mem)
	if err := checkResult(ret, "allocate device memory"); err != nil {
		return vk.NullDeviceMemory, err
	}
	return mem, nil
}

func (d deviceMemory) free(mem vk.DeviceMemory) {
	vk.FreeMemory(d.device, mem, nil)
}

func (d deviceMemory) mapMemory(mem vk.DeviceMemory, size uint64) ([]byte, error) {
	var ptr unsafe.Pointer
	ret := vk.MapMemory(d.device, mem, 0, vk.DeviceSize(vk.WholeSize), 0, &ptr)
	if err := checkResult(ret, "map device memory"); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

type blockKey struct {
	memoryType uint32
	linear     bool
}

type memoryBlock struct {
	key       blockKey
	memory    vk.DeviceMemory
	size      uint64
	dedicated bool
	offsets   *offsetAllocator
	mapped    []byte
}

// AllocationRequest describes memory for one buffer or image.
type AllocationRequest struct {
	Label     string
	Size      uint64
	Alignment uint64
	// TypeBits is the memory type mask from the resource's requirements.
	TypeBits uint32
	Location MemoryLocation
	// Linear is true for buffers and linear-tiled images.
	Linear bool
}

func requestFromRequirements(label string, reqs vk.MemoryRequirements, loc MemoryLocation, linear bool) AllocationRequest {
	reqs.Deref()
	return AllocationRequest{
		Label:     label,
		Size:      uint64(reqs.Size),
		Alignment: uint64(reqs.Alignment),
		TypeBits:  reqs.MemoryTypeBits,
		Location:  loc,
		Linear:    linear,
	}
}

// Allocation is a range of device memory owned by one resource.
type Allocation struct {
	Memory vk.DeviceMemory
	Offset uint64
	Size   uint64

	block *memoryBlock
}

// Mapped returns the host view of the allocation, or nil when the memory is
// not host visible.
func (a *Allocation) Mapped() []byte {
	if a == nil || a.block == nil || a.block.mapped == nil {
		return nil
	}
	return a.block.mapped[a.Offset : a.Offset+a.Size : a.Offset+a.Size]
}

// Allocator sub-allocates device memory blocks. One per device; all methods
// are safe for concurrent use.
type Allocator struct {
	mu      sync.Mutex
	backend memoryBackend
	types   []vk.MemoryPropertyFlags
	blocks  map[blockKey][]*memoryBlock
	logger  *slog.Logger

	deviceBlockSize uint64
	hostBlockSize   uint64
}

func newAllocator(backend memoryBackend, types []vk.MemoryPropertyFlags, cfg Config, logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = discardLogger()
	}
	return &Allocator{
		backend:         backend,
		types:           types,
		blocks:          make(map[blockKey][]*memoryBlock),
		logger:          logger,
		deviceBlockSize: cfg.deviceBlockSize(),
		hostBlockSize:   cfg.hostBlockSize(),
	}
}

// Allocate finds or creates a block for req and reserves a range in it.
func (a *Allocator) Allocate(req AllocationRequest) (*Allocation, error) {
	if req.Size == 0 {
		return nil, errors.Newf("allocate %q: zero size", req.Label)
	}
	required, preferred := req.Location.propertyFlags()
	memoryType, ok := chooseMemoryType(a.types, req.TypeBits, required, preferred)
	if !ok {
		return nil, fatalf(errors.Newf("no memory type for %s in mask %#x", req.Location, req.TypeBits),
			"allocate %q", req.Label)
	}
	key := blockKey{memoryType: memoryType, linear: req.Linear}
	hostVisible := a.types[memoryType]&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, block := range a.blocks[key] {
		if block.dedicated {
			continue
		}
		if offset, ok := block.offsets.allocate(req.Size, req.Alignment); ok {
			return &Allocation{Memory: block.memory, Offset: offset, Size: req.Size, block: block}, nil
		}
	}

	blockSize := a.deviceBlockSize
	if hostVisible {
		blockSize = a.hostBlockSize
	}
	dedicated := req.Size > blockSize
	if dedicated {
		blockSize = req.Size
	}
	block, err := a.newBlock(key, blockSize, dedicated, hostVisible)
	if err != nil {
		return nil, fatalf(err, "allocate %q", req.Label)
	}
	offset, ok := block.offsets.allocate(req.Size, req.Alignment)
	if !ok {
		a.releaseBlock(block)
		return nil, fatalf(errors.Newf("%d bytes do not fit a fresh block of %d", req.Size, blockSize),
			"allocate %q", req.Label)
	}
	a.logger.Debug("allocated memory block",
		slog.String("label", req.Label),
		slog.Uint64("size", blockSize),
		slog.Int("memoryType", int(memoryType)),
		slog.Bool("dedicated", dedicated))
	return &Allocation{Memory: block.memory, Offset: offset, Size: req.Size, block: block}, nil
}

func (a *Allocator) newBlock(key blockKey, size uint64, dedicated, hostVisible bool) (*memoryBlock, error) {
	mem, err := a.backend.allocate(size, key.memoryType)
	if err != nil {
		return nil, err
	}
	block := &memoryBlock{
		key:       key,
		memory:    mem,
		size:      size,
		dedicated: dedicated,
		offsets:   newOffsetAllocator(size),
	}
	if hostVisible {
		block.mapped, err = a.backend.mapMemory(mem, size)
		if err != nil {
			a.backend.free(mem)
			return nil, err
		}
	}
	a.blocks[key] = append(a.blocks[key], block)
	return block, nil
}

func (a *Allocator) releaseBlock(block *memoryBlock) {
	list := a.blocks[block.key]
	for i, b := range list {
		if b == block {
			a.blocks[block.key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(a.blocks[block.key]) == 0 {
		delete(a.blocks, block.key)
	}
	a.backend.free(block.memory)
	a.logger.Debug("released memory block",
		slog.Uint64("size", block.size),
		slog.Int("memoryType", int(block.key.memoryType)))
}

// Free returns alloc to its block. An emptied block is released.
func (a *Allocator) Free(alloc *Allocation) {
	if alloc == nil || alloc.block == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	block := alloc.block
	block.offsets.release(alloc.Offset, alloc.Size)
	alloc.block = nil
	if block.offsets.empty() {
		a.releaseBlock(block)
	}
}

// Destroy frees every block still held.
func (a *Allocator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, list := range a.blocks {
		for _, block := range list {
			a.backend.free(block.memory)
		}
		delete(a.blocks, key)
	}
}

func (a *Allocator) blockCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, list := range a.blocks {
		n += len(list)
	}
	return n
}
