package vulkan

import "github.com/spaghettifunk/vizcore/engine/core"

// Kind tags the seventeen resource kinds the core manages. SetDestroyed
// names the kind in its log line; destruction itself goes through each
// resource type's own Destroy method, not a dispatch on Kind.
type Kind int

const (
	KindHost Kind = iota
	KindDevice
	KindWindow
	KindSwapchain
	KindBuffer
	KindImage
	KindSampler
	KindDescriptorSlots
	KindDescriptors
	KindCompute
	KindGraphics
	KindBarrier
	KindSemaphores
	KindFences
	KindRenderpass
	KindFramebuffers
	KindCommands
)

func (k Kind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindDevice:
		return "device"
	case KindWindow:
		return "window"
	case KindSwapchain:
		return "swapchain"
	case KindBuffer:
		return "buffer"
	case KindImage:
		return "image"
	case KindSampler:
		return "sampler"
	case KindDescriptorSlots:
		return "descriptor-slots"
	case KindDescriptors:
		return "descriptors"
	case KindCompute:
		return "compute"
	case KindGraphics:
		return "graphics"
	case KindBarrier:
		return "barrier"
	case KindSemaphores:
		return "semaphores"
	case KindFences:
		return "fences"
	case KindRenderpass:
		return "renderpass"
	case KindFramebuffers:
		return "framebuffers"
	case KindCommands:
		return "commands"
	default:
		return "unknown"
	}
}

// State is the object-lifecycle tag every resource carries.
type State int

const (
	StateNone State = iota
	StateInit
	StateAllocated
	StateCreated
	StateNeedUpdate
	StateNeedRecreate
	StateNeedDestroy
	StateDestroyed
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateInit:
		return "init"
	case StateAllocated:
		return "allocated"
	case StateCreated:
		return "created"
	case StateNeedUpdate:
		return "need-update"
	case StateNeedRecreate:
		return "need-recreate"
	case StateNeedDestroy:
		return "need-destroy"
	case StateDestroyed:
		return "destroyed"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Lifecycle is embedded by value in every resource struct and implements
// the uniform object-state machine spec describes: none -> init ->
// allocated -> created -> {need-update, need-recreate} -> need-destroy ->
// destroyed, with a parallel terminal `invalid` reachable from any state.
type Lifecycle struct {
	kind  Kind
	state State
}

func NewLifecycle(kind Kind) Lifecycle {
	return Lifecycle{kind: kind, state: StateNone}
}

func (l *Lifecycle) Kind() Kind   { return l.kind }
func (l *Lifecycle) State() State { return l.state }
func (l *Lifecycle) Is(s State) bool { return l.state == s }

func (l *Lifecycle) SetInit()         { l.state = StateInit }
func (l *Lifecycle) SetAllocated()    { l.state = StateAllocated }
func (l *Lifecycle) SetCreated()      { l.state = StateCreated }
func (l *Lifecycle) SetNeedUpdate()   { l.state = StateNeedUpdate }
func (l *Lifecycle) SetNeedRecreate() { l.state = StateNeedRecreate }
func (l *Lifecycle) SetNeedDestroy()  { l.state = StateNeedDestroy }
func (l *Lifecycle) SetInvalid()      { l.state = StateInvalid }

// SetDestroyed marks the object destroyed, returning false when it was
// already destroyed so callers can make Destroy() idempotent: a no-op
// repeat destroy logs at trace/debug level rather than double-freeing a
// Vulkan handle.
func (l *Lifecycle) SetDestroyed() bool {
	if l.state == StateDestroyed {
		core.LogDebug("%s already destroyed, skipping", l.kind)
		return false
	}
	l.state = StateDestroyed
	return true
}
