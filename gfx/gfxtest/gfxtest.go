// Package gfxtest provides a recording gfx backend for tests.
//
// The mock queues submitted work instead of running it. Work is retired when
// a fence event is waited on, or immediately when CompleteImmediately is
// set, so tests can observe exactly what was outstanding at any point.
// Failures are injected per operation with FailOn.
package gfxtest

import (
	"errors"
	"fmt"
	"image"

	"clearcolor/gfx"
)

// Operation names accepted by FailOn.
const (
	OpCreateFactory        = "CreateFactory"
	OpCreateEvent          = "CreateEvent"
	OpCreateDevice         = "CreateDevice"
	OpCreateCommandQueue   = "CreateCommandQueue"
	OpCreateSwapChain      = "CreateSwapChain"
	OpCreateDescriptorHeap = "CreateDescriptorHeap"
	OpGetBuffer            = "GetBuffer"
	OpCreateAllocator      = "CreateCommandAllocator"
	OpCreateCommandList    = "CreateCommandList"
	OpCreateFence          = "CreateFence"
	OpAllocatorReset       = "Allocator.Reset"
	OpListReset            = "List.Reset"
	OpListClose            = "List.Close"
	OpSignal               = "Queue.Signal"
	OpSetEventOnCompletion = "Fence.SetEventOnCompletion"
	OpEventWait            = "Event.Wait"
	OpPresent              = "SwapChain.Present"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("gfxtest: injected failure")

// ErrDeadlock is returned by Event.Wait when the event could never be
// signaled by the queued work.
var ErrDeadlock = errors.New("gfxtest: event wait would block forever")

const (
	DefaultHeapStart uintptr = 0x10000
	DefaultIncrement uint32  = 32
	DefaultWidth             = 64
	DefaultHeight            = 48
)

type fault struct {
	nth int
	err error
}

// PresentCall records the arguments of one Present.
type PresentCall struct {
	SyncInterval uint32
	Flags        gfx.PresentFlags
	BackBuffer   uint32
}

// Command is one recorded command list entry.
type Command struct {
	Op      string
	Barrier gfx.ResourceBarrier
	RTVs    []gfx.CPUDescriptorHandle
	DSV     *gfx.CPUDescriptorHandle
	Color   gfx.Color
}

// RecordedList is the content of a command list at Close.
type RecordedList struct {
	Commands []Command
}

// Barriers returns the transition barriers in the list, in order.
func (l RecordedList) Barriers() []gfx.ResourceBarrier {
	var out []gfx.ResourceBarrier
	for _, c := range l.Commands {
		if c.Op == "ResourceBarrier" {
			out = append(out, c.Barrier)
		}
	}
	return out
}

// Violation describes a barrier whose before state did not match the
// tracked state of the resource when the GPU executed it.
type Violation struct {
	Resource *Resource
	Want     gfx.ResourceStates
	Got      gfx.ResourceStates
}

type work struct {
	list   *CommandList
	fence  *Fence
	value  uint64
	commit RecordedList
}

// Backend is a recording mock implementation of gfx.Backend.
type Backend struct {
	// CompleteImmediately retires queued work as soon as it is signaled.
	CompleteImmediately bool
	// NoSwapChain3 makes swap chains lack CurrentBackBufferIndex.
	NoSwapChain3 bool

	HeapStart uintptr
	Increment uint32
	Width     int
	Height    int

	faults map[string]*fault
	counts map[string]int

	Created  map[string]int
	Released map[string]int

	Signals      []uint64
	Presents     []PresentCall
	EventWaits   int
	EventsClosed int
	Executed     int
	Recorded     []RecordedList
	Bound        []gfx.CPUDescriptorHandle
	Violations   []Violation

	pending    []work
	BackBuffer []*Resource
	SwapChain  *SwapChain
}

var _ gfx.Backend = (*Backend)(nil)

// New returns a mock backend with default descriptor layout.
func New() *Backend {
	return &Backend{
		HeapStart: DefaultHeapStart,
		Increment: DefaultIncrement,
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		faults:    make(map[string]*fault),
		counts:    make(map[string]int),
		Created:   make(map[string]int),
		Released:  make(map[string]int),
	}
}

// FailOn makes the nth (1-based) call of op fail with err, or ErrInjected
// when err is nil.
func (b *Backend) FailOn(op string, nth int, err error) {
	if err == nil {
		err = ErrInjected
	}
	b.faults[op] = &fault{nth: nth, err: err}
}

// Calls returns how many times op has been invoked.
func (b *Backend) Calls(op string) int {
	return b.counts[op]
}

// Outstanding returns the number of queued items the GPU has not retired.
func (b *Backend) Outstanding() int {
	return len(b.pending)
}

// Live returns how many objects of kind are created but not released.
func (b *Backend) Live(kind string) int {
	return b.Created[kind] - b.Released[kind]
}

func (b *Backend) hit(op string) error {
	b.counts[op]++
	if f, ok := b.faults[op]; ok && f.nth == b.counts[op] {
		return fmt.Errorf("%s: %w", op, f.err)
	}
	return nil
}

func (b *Backend) created(kind string) { b.Created[kind]++ }

func (b *Backend) released(kind string) { b.Released[kind]++ }

func (b *Backend) Name() string { return "mock" }

func (b *Backend) Surface() gfx.SurfaceKind { return gfx.SurfaceHeadless }

func (b *Backend) CreateFactory(gfx.FactoryFlags) (gfx.Factory, error) {
	if err := b.hit(OpCreateFactory); err != nil {
		return nil, err
	}
	b.created("Factory")
	return &Factory{b: b}, nil
}

func (b *Backend) CreateEvent() (gfx.Event, error) {
	if err := b.hit(OpCreateEvent); err != nil {
		return nil, err
	}
	b.created("Event")
	return &Event{b: b}, nil
}

// drain retires every queued item in submission order.
func (b *Backend) drain() {
	for _, w := range b.pending {
		if w.list != nil {
			b.execute(w.commit)
			continue
		}
		w.fence.complete(w.value)
	}
	b.pending = b.pending[:0]
}

func (b *Backend) execute(list RecordedList) {
	b.Executed++
	for _, c := range list.Commands {
		if c.Op != "ResourceBarrier" {
			continue
		}
		r, ok := c.Barrier.Transition.Resource.(*Resource)
		if !ok {
			continue
		}
		if r.State != c.Barrier.Transition.StateBefore {
			b.Violations = append(b.Violations, Violation{Resource: r, Want: c.Barrier.Transition.StateBefore, Got: r.State})
		}
		r.State = c.Barrier.Transition.StateAfter
	}
}

type Factory struct{ b *Backend }

func (f *Factory) Release() { f.b.released("Factory") }

func (f *Factory) CreateDevice(minLevel gfx.FeatureLevel) (gfx.Device, error) {
	if err := f.b.hit(OpCreateDevice); err != nil {
		return nil, fmt.Errorf("%w: %w", gfx.ErrDeviceUnavailable, err)
	}
	if minLevel > gfx.FeatureLevel12_1 {
		return nil, gfx.ErrDeviceUnavailable
	}
	f.b.created("Device")
	return &Device{b: f.b}, nil
}

func (f *Factory) CreateSwapChainForWindow(queue gfx.CommandQueue, window gfx.Window, desc *gfx.SwapChainDesc1) (gfx.SwapChain, error) {
	if err := f.b.hit(OpCreateSwapChain); err != nil {
		return nil, err
	}
	if _, ok := queue.(*Queue); !ok {
		return nil, errors.New("gfxtest: swap chain must be created against a mock queue")
	}
	w, h := int(desc.Width), int(desc.Height)
	if w == 0 || h == 0 {
		w, h = f.b.Width, f.b.Height
		if window != nil {
			if cw, ch := window.ClientSize(); cw > 0 && ch > 0 {
				w, h = cw, ch
			}
		}
	}
	f.b.BackBuffer = make([]*Resource, desc.BufferCount)
	for i := range f.b.BackBuffer {
		f.b.BackBuffer[i] = &Resource{b: f.b, Index: uint32(i), State: gfx.ResourceStatePresent, Bounds: image.Rect(0, 0, w, h)}
	}
	f.b.created("SwapChain")
	sc := &SwapChain{b: f.b, Desc: *desc}
	f.b.SwapChain = sc
	if f.b.NoSwapChain3 {
		return &swapChain1{sc}, nil
	}
	return sc, nil
}

type Device struct{ b *Backend }

func (d *Device) Release() { d.b.released("Device") }

func (d *Device) CreateCommandQueue(desc *gfx.CommandQueueDesc) (gfx.CommandQueue, error) {
	if err := d.b.hit(OpCreateCommandQueue); err != nil {
		return nil, err
	}
	d.b.created("CommandQueue")
	return &Queue{b: d.b, Desc: *desc}, nil
}

func (d *Device) CreateDescriptorHeap(desc *gfx.DescriptorHeapDesc) (gfx.DescriptorHeap, error) {
	if err := d.b.hit(OpCreateDescriptorHeap); err != nil {
		return nil, err
	}
	d.b.created("DescriptorHeap")
	return &DescriptorHeap{b: d.b, Desc: *desc}, nil
}

func (d *Device) DescriptorHandleIncrementSize(gfx.DescriptorHeapType) uint32 {
	d.b.counts["DescriptorHandleIncrementSize"]++
	return d.b.Increment
}

func (d *Device) CreateRenderTargetView(resource gfx.Resource, _ *gfx.RenderTargetViewDesc, dest gfx.CPUDescriptorHandle) {
	d.b.counts["CreateRenderTargetView"]++
	if r, ok := resource.(*Resource); ok {
		r.RTV = dest
	}
}

func (d *Device) CreateCommandAllocator(gfx.CommandListType) (gfx.CommandAllocator, error) {
	if err := d.b.hit(OpCreateAllocator); err != nil {
		return nil, err
	}
	d.b.created("CommandAllocator")
	return &Allocator{b: d.b}, nil
}

func (d *Device) CreateCommandList(_ uint32, _ gfx.CommandListType, allocator gfx.CommandAllocator, _ gfx.PipelineState) (gfx.GraphicsCommandList, error) {
	if err := d.b.hit(OpCreateCommandList); err != nil {
		return nil, err
	}
	d.b.created("CommandList")
	return &CommandList{b: d.b, recording: true, allocator: allocator}, nil
}

func (d *Device) CreateFence(initial uint64, _ gfx.FenceFlags) (gfx.Fence, error) {
	if err := d.b.hit(OpCreateFence); err != nil {
		return nil, err
	}
	d.b.created("Fence")
	return &Fence{b: d.b, completed: initial}, nil
}

type Queue struct {
	b    *Backend
	Desc gfx.CommandQueueDesc
}

func (q *Queue) Release() { q.b.released("CommandQueue") }

func (q *Queue) ExecuteCommandLists(lists []gfx.CommandList) {
	for _, l := range lists {
		cl := l.(*CommandList)
		q.b.pending = append(q.b.pending, work{list: cl, commit: cl.closed})
	}
}

func (q *Queue) Signal(fence gfx.Fence, value uint64) error {
	if err := q.b.hit(OpSignal); err != nil {
		return err
	}
	q.b.Signals = append(q.b.Signals, value)
	q.b.pending = append(q.b.pending, work{fence: fence.(*Fence), value: value})
	if q.b.CompleteImmediately {
		q.b.drain()
	}
	return nil
}

type swapChain1 struct{ sc *SwapChain }

func (s *swapChain1) Release() { s.sc.Release() }

func (s *swapChain1) GetBuffer(n uint32) (gfx.Resource, error) { return s.sc.GetBuffer(n) }

func (s *swapChain1) Present(syncInterval uint32, flags gfx.PresentFlags) error {
	return s.sc.Present(syncInterval, flags)
}

type SwapChain struct {
	b     *Backend
	Desc  gfx.SwapChainDesc1
	index uint32
}

func (s *SwapChain) Release() { s.b.released("SwapChain") }

func (s *SwapChain) GetBuffer(n uint32) (gfx.Resource, error) {
	if err := s.b.hit(OpGetBuffer); err != nil {
		return nil, err
	}
	if int(n) >= len(s.b.BackBuffer) {
		return nil, fmt.Errorf("gfxtest: buffer %d out of range", n)
	}
	s.b.created("Resource")
	return s.b.BackBuffer[n], nil
}

// Present records the call and advances the back buffer index.
func (s *SwapChain) Present(syncInterval uint32, flags gfx.PresentFlags) error {
	if err := s.b.hit(OpPresent); err != nil {
		return err
	}
	s.b.Presents = append(s.b.Presents, PresentCall{SyncInterval: syncInterval, Flags: flags, BackBuffer: s.index})
	s.index = (s.index + 1) % s.Desc.BufferCount
	return nil
}

func (s *SwapChain) CurrentBackBufferIndex() uint32 { return s.index }

type DescriptorHeap struct {
	b    *Backend
	Desc gfx.DescriptorHeapDesc
}

func (h *DescriptorHeap) Release() { h.b.released("DescriptorHeap") }

func (h *DescriptorHeap) CPUDescriptorHandleForHeapStart() gfx.CPUDescriptorHandle {
	return gfx.CPUDescriptorHandle{Ptr: h.b.HeapStart}
}

// Resource is a mock back buffer with tracked resource state.
type Resource struct {
	b      *Backend
	Index  uint32
	State  gfx.ResourceStates
	RTV    gfx.CPUDescriptorHandle
	Bounds image.Rectangle
}

func (r *Resource) Release() { r.b.released("Resource") }

type Allocator struct{ b *Backend }

func (a *Allocator) Release() { a.b.released("CommandAllocator") }

func (a *Allocator) Reset() error {
	if err := a.b.hit(OpAllocatorReset); err != nil {
		return err
	}
	if a.b.Outstanding() > 0 {
		return errors.New("gfxtest: allocator reset while the GPU still references it")
	}
	return nil
}

type CommandList struct {
	b         *Backend
	recording bool
	allocator gfx.CommandAllocator
	commands  []Command
	closed    RecordedList
}

func (l *CommandList) Release() { l.b.released("CommandList") }

func (l *CommandList) Reset(allocator gfx.CommandAllocator, _ gfx.PipelineState) error {
	if err := l.b.hit(OpListReset); err != nil {
		return err
	}
	if l.recording {
		return errors.New("gfxtest: reset of a list that is still recording")
	}
	l.recording = true
	l.allocator = allocator
	l.commands = nil
	return nil
}

func (l *CommandList) Close() error {
	if err := l.b.hit(OpListClose); err != nil {
		return err
	}
	if !l.recording {
		return errors.New("gfxtest: close of a closed list")
	}
	l.recording = false
	l.closed = RecordedList{Commands: l.commands}
	l.b.Recorded = append(l.b.Recorded, l.closed)
	return nil
}

func (l *CommandList) ResourceBarrier(barriers []gfx.ResourceBarrier) {
	for _, b := range barriers {
		l.commands = append(l.commands, Command{Op: "ResourceBarrier", Barrier: b})
	}
}

func (l *CommandList) OMSetRenderTargets(rtvs []gfx.CPUDescriptorHandle, _ bool, dsv *gfx.CPUDescriptorHandle) {
	l.b.Bound = append(l.b.Bound, rtvs...)
	l.commands = append(l.commands, Command{Op: "OMSetRenderTargets", RTVs: append([]gfx.CPUDescriptorHandle(nil), rtvs...), DSV: dsv})
}

func (l *CommandList) ClearRenderTargetView(rtv gfx.CPUDescriptorHandle, c gfx.Color, _ []gfx.Rect) {
	l.commands = append(l.commands, Command{Op: "ClearRenderTargetView", RTVs: []gfx.CPUDescriptorHandle{rtv}, Color: c})
}

type Fence struct {
	b         *Backend
	completed uint64
	waitValue uint64
	waitEvent *Event
}

func (f *Fence) Release() { f.b.released("Fence") }

func (f *Fence) CompletedValue() uint64 { return f.completed }

func (f *Fence) SetEventOnCompletion(value uint64, event gfx.Event) error {
	if err := f.b.hit(OpSetEventOnCompletion); err != nil {
		return err
	}
	e := event.(*Event)
	if f.completed >= value {
		e.signaled = true
		return nil
	}
	f.waitValue, f.waitEvent = value, e
	e.fence = f
	return nil
}

func (f *Fence) complete(value uint64) {
	if value > f.completed {
		f.completed = value
	}
	if f.waitEvent != nil && f.completed >= f.waitValue {
		f.waitEvent.signaled = true
		f.waitEvent = nil
	}
}

type Event struct {
	b        *Backend
	fence    *Fence
	signaled bool
	closed   bool
}

// Wait runs the queued GPU work and consumes the signal.
func (e *Event) Wait() error {
	if err := e.b.hit(OpEventWait); err != nil {
		return err
	}
	if e.closed {
		return gfx.ErrEventClosed
	}
	e.b.EventWaits++
	e.b.drain()
	if !e.signaled {
		return ErrDeadlock
	}
	e.signaled = false
	return nil
}

func (e *Event) Close() error {
	if e.closed {
		return gfx.ErrEventClosed
	}
	e.closed = true
	e.b.EventsClosed++
	e.b.released("Event")
	return nil
}
