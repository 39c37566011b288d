package vulkan

import vk "github.com/goki/vulkan"

// ImageShape distinguishes 1D/2D/3D images, driving which vk.ImageType and
// vk.ImageViewType a Image is created with.
type ImageShape int

const (
	ImageShape1D ImageShape = iota
	ImageShape2D
	ImageShape3D
)

// ImageConfig configures a single image within an Image set.
type ImageConfig struct {
	Shape       ImageShape
	Width       uint32
	Height      uint32
	Depth       uint32
	Format      vk.Format
	Tiling      vk.ImageTiling
	Usage       vk.ImageUsageFlagBits
	MemoryFlags vk.MemoryPropertyFlagBits
	AspectFlags vk.ImageAspectFlagBits
	CreateView  bool
	MipLevels   uint32
}

// Image is a single Vulkan image, its memory, and (optionally) its view.
type Image struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
	Depth  uint32
	Format vk.Format
	Layout vk.ImageLayout
}

// ImageSet is `count` images sharing a config, e.g. one per swapchain
// image, fanned out through the same clipIndex helper every other
// per-frame resource uses.
type ImageSet struct {
	Lifecycle

	gpu    *GPU
	Config ImageConfig
	Images []*Image
}

// NewImageSet creates count images per cfg and binds memory to each,
// creating a view for each when cfg.CreateView is set and cfg.Tiling is
// optimal; linear-tiled images get no view. Before creating,
// it validates the requested format/usage/tiling combination is supported
// via vkGetPhysicalDeviceImageFormatProperties, failing fast rather than
// deferring to a cryptic vkCreateImage error.
func NewImageSet(g *GPU, count int, cfg ImageConfig) (*ImageSet, error) {
	if cfg.MipLevels == 0 {
		cfg.MipLevels = 1
	}

	var formatProps vk.ImageFormatProperties
	result := vk.GetPhysicalDeviceImageFormatProperties(g.PhysicalDevice, cfg.Format, imageType(cfg.Shape),
		cfg.Tiling, vk.ImageUsageFlags(cfg.Usage), 0, &formatProps)
	if !VulkanResultIsSuccess(result) {
		return nil, errUnknownf("format %v not supported for requested image usage/tiling", cfg.Format)
	}

	s := &ImageSet{
		Lifecycle: NewLifecycle(KindImage),
		gpu:       g,
		Config:    cfg,
	}
	s.SetInit()

	for i := 0; i < count; i++ {
		img, err := createImage(g, cfg)
		if err != nil {
			s.Destroy()
			return nil, err
		}
		s.Images = append(s.Images, img)
	}
	s.SetCreated()
	return s, nil
}

func imageType(shape ImageShape) vk.ImageType {
	switch shape {
	case ImageShape1D:
		return vk.ImageType1d
	case ImageShape3D:
		return vk.ImageType3d
	default:
		return vk.ImageType2d
	}
}

func imageViewType(shape ImageShape) vk.ImageViewType {
	switch shape {
	case ImageShape1D:
		return vk.ImageViewType1d
	case ImageShape3D:
		return vk.ImageViewType3d
	default:
		return vk.ImageViewType2d
	}
}

func createImage(g *GPU, cfg ImageConfig) (*Image, error) {
	depth := cfg.Depth
	if depth == 0 {
		depth = 1
	}
	sharingMode, queueFamilyIndices := g.sharingQueueFamilies()
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: imageType(cfg.Shape),
		Extent: vk.Extent3D{
			Width:  cfg.Width,
			Height: cfg.Height,
			Depth:  depth,
		},
		MipLevels:            cfg.MipLevels,
		ArrayLayers:          1,
		Format:               cfg.Format,
		Tiling:               cfg.Tiling,
		InitialLayout:        vk.ImageLayoutUndefined,
		Usage:                vk.ImageUsageFlags(cfg.Usage),
		Samples:              vk.SampleCount1Bit,
		SharingMode:          sharingMode,
		QueueFamilyIndexCount: uint32(len(queueFamilyIndices)),
		PQueueFamilyIndices:   queueFamilyIndices,
	}

	var img Image
	err := g.locks.SafeCall(LockImageManagement, func() error {
		var handle vk.Image
		result := vk.CreateImage(g.Device, &createInfo, nil, &handle)
		if !VulkanResultIsSuccess(result) {
			return errUnknownf("vkCreateImage failed: %s", VulkanResultString(result, true))
		}

		var reqs vk.MemoryRequirements
		vk.GetImageMemoryRequirements(g.Device, handle, &reqs)
		reqs.Deref()

		memIndex := g.FindMemoryIndex(reqs.MemoryTypeBits, cfg.MemoryFlags)
		if memIndex < 0 {
			vk.DestroyImage(g.Device, handle, nil)
			return errUnknownf("no suitable memory type for image")
		}

		allocInfo := vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  reqs.Size,
			MemoryTypeIndex: uint32(memIndex),
		}
		var memory vk.DeviceMemory
		result = vk.AllocateMemory(g.Device, &allocInfo, nil, &memory)
		if !VulkanResultIsSuccess(result) {
			vk.DestroyImage(g.Device, handle, nil)
			return errUnknownf("vkAllocateMemory failed: %s", VulkanResultString(result, true))
		}

		if result := vk.BindImageMemory(g.Device, handle, memory, 0); !VulkanResultIsSuccess(result) {
			vk.FreeMemory(g.Device, memory, nil)
			vk.DestroyImage(g.Device, handle, nil)
			return errUnknownf("vkBindImageMemory failed: %s", VulkanResultString(result, true))
		}

		img = Image{
			Handle: handle,
			Memory: memory,
			Width:  cfg.Width,
			Height: cfg.Height,
			Depth:  depth,
			Format: cfg.Format,
			Layout: vk.ImageLayoutUndefined,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cfg.CreateView && cfg.Tiling == vk.ImageTilingOptimal {
		if err := createView(g, &img, cfg); err != nil {
			return nil, err
		}
	}
	return &img, nil
}

func createView(g *GPU, img *Image, cfg ImageConfig) error {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle,
		ViewType: imageViewType(cfg.Shape),
		Format:   cfg.Format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(cfg.AspectFlags),
			BaseMipLevel:   0,
			LevelCount:     cfg.MipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	result := vk.CreateImageView(g.Device, &viewInfo, nil, &view)
	if !VulkanResultIsSuccess(result) {
		return errUnknownf("vkCreateImageView failed: %s", VulkanResultString(result, true))
	}
	img.View = view
	return nil
}

// Transition records a layout transition for image i (clipped per-frame)
// into cb, deriving access masks and pipeline stages from the old/new
// layout pair.
func (s *ImageSet) Transition(cb *CommandBuffer, frame uint32, newLayout vk.ImageLayout) {
	img := s.Images[clipIndex(uint32(len(s.Images)), frame)]
	srcAccess, dstAccess, srcStage, dstStage := transitionMasks(img.Layout, newLayout)

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           img.Layout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(s.Config.AspectFlags),
			BaseMipLevel:   0,
			LevelCount:     s.Config.MipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		SrcAccessMask: vk.AccessFlags(srcAccess),
		DstAccessMask: vk.AccessFlags(dstAccess),
	}
	cb.PipelineBarrier(srcStage, dstStage, []vk.ImageMemoryBarrier{barrier})
	img.Layout = newLayout
}

func transitionMasks(oldLayout, newLayout vk.ImageLayout) (vk.AccessFlagBits, vk.AccessFlagBits, vk.PipelineStageFlagBits, vk.PipelineStageFlagBits) {
	switch {
	case oldLayout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutTransferDstOptimal:
		return 0, vk.AccessTransferWriteBit, vk.PipelineStageTopOfPipeBit, vk.PipelineStageTransferBit
	case oldLayout == vk.ImageLayoutTransferDstOptimal && newLayout == vk.ImageLayoutShaderReadOnlyOptimal:
		return vk.AccessTransferWriteBit, vk.AccessShaderReadBit, vk.PipelineStageTransferBit, vk.PipelineStageFragmentShaderBit
	case oldLayout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutColorAttachmentOptimal:
		return 0, vk.AccessColorAttachmentWriteBit, vk.PipelineStageTopOfPipeBit, vk.PipelineStageColorAttachmentOutputBit
	case oldLayout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutDepthStencilAttachmentOptimal:
		return 0, vk.AccessDepthStencilAttachmentWriteBit, vk.PipelineStageTopOfPipeBit, vk.PipelineStageEarlyFragmentTestsBit
	case oldLayout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutGeneral:
		return 0, vk.AccessShaderWriteBit | vk.AccessShaderReadBit, vk.PipelineStageTopOfPipeBit, vk.PipelineStageComputeShaderBit
	case oldLayout == vk.ImageLayoutColorAttachmentOptimal && newLayout == vk.ImageLayoutPresentSrcKhr:
		return vk.AccessColorAttachmentWriteBit, 0, vk.PipelineStageColorAttachmentOutputBit, vk.PipelineStageBottomOfPipeBit
	default:
		return vk.AccessFlagBits(0x7FFFFFFF), vk.AccessFlagBits(0x7FFFFFFF), vk.PipelineStageAllCommandsBit, vk.PipelineStageAllCommandsBit
	}
}

// Resize destroys and recreates every image at the new width/height,
// preserving the set's config otherwise. Contents are not preserved; the
// caller is responsible for re-rendering or re-uploading.
func (s *ImageSet) Resize(width, height uint32) error {
	s.Config.Width = width
	s.Config.Height = height
	for i, img := range s.Images {
		destroyImage(s.gpu, img)
		newImg, err := createImage(s.gpu, s.Config)
		if err != nil {
			return err
		}
		s.Images[i] = newImg
	}
	return nil
}

func destroyImage(g *GPU, img *Image) {
	if img.View != vk.NullImageView {
		vk.DestroyImageView(g.Device, img.View, nil)
	}
	if img.Handle != vk.NullImage {
		vk.DestroyImage(g.Device, img.Handle, nil)
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(g.Device, img.Memory, nil)
	}
}

// Destroy releases every image in the set. Idempotent.
func (s *ImageSet) Destroy() {
	if !s.SetDestroyed() {
		return
	}
	for _, img := range s.Images {
		destroyImage(s.gpu, img)
	}
}

// Sampler wraps a vk.Sampler with its filtering/addressing configuration.
type Sampler struct {
	Lifecycle
	gpu    *GPU
	Handle vk.Sampler
}

// SamplerConfig configures a Sampler.
type SamplerConfig struct {
	MinFilter        vk.Filter
	MagFilter        vk.Filter
	AddressMode      vk.SamplerAddressMode
	AnisotropyEnable bool
	MaxAnisotropy    float32
}

func NewSampler(g *GPU, cfg SamplerConfig) (*Sampler, error) {
	createInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               cfg.MagFilter,
		MinFilter:               cfg.MinFilter,
		AddressModeU:            cfg.AddressMode,
		AddressModeV:            cfg.AddressMode,
		AddressModeW:            cfg.AddressMode,
		AnisotropyEnable:        vk.Bool32(boolToUint32(cfg.AnisotropyEnable)),
		MaxAnisotropy:           cfg.MaxAnisotropy,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}

	s := &Sampler{Lifecycle: NewLifecycle(KindSampler), gpu: g}
	s.SetInit()
	err := g.locks.SafeCall(LockSamplerManagement, func() error {
		var handle vk.Sampler
		result := vk.CreateSampler(g.Device, &createInfo, nil, &handle)
		if !VulkanResultIsSuccess(result) {
			return errUnknownf("vkCreateSampler failed: %s", VulkanResultString(result, true))
		}
		s.Handle = handle
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.SetCreated()
	return s, nil
}

func (s *Sampler) Destroy() {
	if !s.SetDestroyed() {
		return
	}
	if s.Handle != vk.NullSampler {
		vk.DestroySampler(s.gpu.Device, s.Handle, nil)
	}
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
