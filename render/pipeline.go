package render

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/signalsfoundry/graphscape/model"
)

// ErrDeviceLost is returned when a GPU operation fails in a way that
// requires the caller to rebuild the pipeline against a fresh device.
var ErrDeviceLost = errors.New("render: gpu device lost")

// frameUniforms matches FrameUniforms in the WGSL sources. Fields are
// 16-byte aligned as std140 requires.
type frameUniforms struct {
	ViewProj [16]float32
	Eye      [4]float32
	Params   [4]float32 // time, aspect, flow speed, pulse speed
}

// configUniforms matches ConfigUniforms in the WGSL sources.
type configUniforms struct {
	Features  [4]float32 // lighting, fresnel, pulse, entrance
	Features2 [4]float32 // flow, max render distance, edge segments, unused
}

// ShaderPipeline owns the GPU resources for the node and edge programs: two
// render pipelines sharing one bind group of frame and config uniforms, plus
// the per-instance vertex buffers. Instance data comes from a
// GeometryManager; the pipeline only moves bytes and issues draws.
type ShaderPipeline struct {
	device *wgpu.Device
	queue  *wgpu.Queue
	format wgpu.TextureFormat

	profile model.PerformanceProfile

	frameBuf  *wgpu.Buffer
	configBuf *wgpu.Buffer
	bindGroup *wgpu.BindGroup
	bindLay   *wgpu.BindGroupLayout

	nodePipe *wgpu.RenderPipeline
	edgePipe *wgpu.RenderPipeline

	nodeBuf  *wgpu.Buffer
	nodeCap  int // capacity in floats
	edgeBuf  *wgpu.Buffer
	edgeCap  int
	nodeN    int // instance counts for the next Render
	edgeN    int

	frame frameUniforms
}

// NewShaderPipeline builds all static GPU resources against the given device
// and surface format. Instance buffers are allocated lazily on first upload.
func NewShaderPipeline(device *wgpu.Device, format wgpu.TextureFormat, profile model.PerformanceProfile) (*ShaderPipeline, error) {
	sp := &ShaderPipeline{
		device:  device,
		queue:   device.GetQueue(),
		format:  format,
		profile: profile,
	}
	if err := sp.init(); err != nil {
		sp.Release()
		return nil, err
	}
	return sp, nil
}

func (sp *ShaderPipeline) init() error {
	var err error

	sp.frameBuf, err = sp.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "frame-uniforms",
		Size:  uint64(16 * 6),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return deviceErr("create frame uniform buffer", err)
	}
	sp.configBuf, err = sp.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "config-uniforms",
		Size:  uint64(16 * 2),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return deviceErr("create config uniform buffer", err)
	}

	sp.bindLay, err = sp.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "graph-uniforms",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return deviceErr("create bind group layout", err)
	}

	sp.bindGroup, err = sp.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "graph-uniforms",
		Layout: sp.bindLay,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: sp.frameBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: sp.configBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return deviceErr("create bind group", err)
	}

	layout, err := sp.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "graph-pipeline",
		BindGroupLayouts: []*wgpu.BindGroupLayout{sp.bindLay},
	})
	if err != nil {
		return deviceErr("create pipeline layout", err)
	}
	defer layout.Release()

	sp.nodePipe, err = sp.buildPipeline(layout, "node", nodeShaderWGSL, "vs_node", "fs_node",
		wgpu.VertexBufferLayout{
			ArrayStride: NodeInstanceStride,
			StepMode:    wgpu.VertexStepModeInstance,
			Attributes: []wgpu.VertexAttribute{
				{Format: wgpu.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 0},
				{Format: wgpu.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 1},
				{Format: wgpu.VertexFormatFloat32x4, Offset: 32, ShaderLocation: 2},
			},
		})
	if err != nil {
		return err
	}

	sp.edgePipe, err = sp.buildPipeline(layout, "edge", edgeShaderWGSL, "vs_edge", "fs_edge",
		wgpu.VertexBufferLayout{
			ArrayStride: EdgeInstanceStride,
			StepMode:    wgpu.VertexStepModeInstance,
			Attributes: []wgpu.VertexAttribute{
				{Format: wgpu.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 0},
				{Format: wgpu.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 1},
				{Format: wgpu.VertexFormatFloat32x4, Offset: 32, ShaderLocation: 2},
				{Format: wgpu.VertexFormatFloat32x4, Offset: 48, ShaderLocation: 3},
			},
		})
	if err != nil {
		return err
	}

	return sp.writeConfig()
}

func (sp *ShaderPipeline) buildPipeline(layout *wgpu.PipelineLayout, name, src, vsEntry, fsEntry string, vertexLayout wgpu.VertexBufferLayout) (*wgpu.RenderPipeline, error) {
	module, err := sp.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src},
	})
	if err != nil {
		return nil, deviceErr("compile "+name+" shader", err)
	}
	defer module.Release()

	alphaBlend := &wgpu.BlendState{
		Color: wgpu.BlendComponent{
			Operation: wgpu.BlendOperationAdd,
			SrcFactor: wgpu.BlendFactorSrcAlpha,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		},
		Alpha: wgpu.BlendComponent{
			Operation: wgpu.BlendOperationAdd,
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		},
	}

	pipe, err := sp.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  name,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: vsEntry,
			Buffers:    []wgpu.VertexBufferLayout{vertexLayout},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: fsEntry,
			Targets: []wgpu.ColorTargetState{{
				Format:    sp.format,
				Blend:     alphaBlend,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		return nil, deviceErr("create "+name+" pipeline", err)
	}
	return pipe, nil
}

// SetProfile switches the quality tier: feature flags and tessellation
// change immediately, instance caps on the next geometry upload.
func (sp *ShaderPipeline) SetProfile(profile model.PerformanceProfile) error {
	sp.profile = profile
	return sp.writeConfig()
}

func (sp *ShaderPipeline) writeConfig() error {
	cfg := configUniforms{
		Features: [4]float32{
			boolFlag(sp.profile.Lighting),
			boolFlag(sp.profile.Fresnel),
			boolFlag(sp.profile.PulseAnimation),
			boolFlag(sp.profile.EntranceAnimation),
		},
		Features2: [4]float32{
			boolFlag(sp.profile.FlowAnimation),
			float32(sp.profile.MaxRenderDistance),
			float32(sp.profile.EdgeSegments),
			0,
		},
	}
	if err := sp.queue.WriteBuffer(sp.configBuf, 0, wgpu.ToBytes([]configUniforms{cfg})); err != nil {
		return deviceErr("write config uniforms", err)
	}
	return nil
}

// UpdateCamera uploads the view-projection matrix and eye position.
func (sp *ShaderPipeline) UpdateCamera(viewProj mgl32.Mat4, eye mgl32.Vec3, aspect float32) error {
	copy(sp.frame.ViewProj[:], viewProj[:])
	sp.frame.Eye = [4]float32{eye.X(), eye.Y(), eye.Z(), 1}
	sp.frame.Params[1] = aspect
	return sp.writeFrame()
}

// UpdateTime advances the animation clock. Flow and pulse speeds ride along
// so they stay a single uniform write.
func (sp *ShaderPipeline) UpdateTime(seconds float64) error {
	sp.frame.Params[0] = float32(seconds)
	sp.frame.Params[2] = 0.25 // flow cycles per second
	sp.frame.Params[3] = 4    // pulse angular speed
	return sp.writeFrame()
}

func (sp *ShaderPipeline) writeFrame() error {
	if err := sp.queue.WriteBuffer(sp.frameBuf, 0, wgpu.ToBytes([]frameUniforms{sp.frame})); err != nil {
		return deviceErr("write frame uniforms", err)
	}
	return nil
}

// UploadGeometry copies the manager's instance lanes into the GPU vertex
// buffers, growing them as needed. Buffers only grow; shrinking churn is not
// worth the reallocation.
func (sp *ShaderPipeline) UploadGeometry(g *GeometryManager) error {
	var err error
	sp.nodeBuf, sp.nodeCap, err = sp.uploadInstances("node-instances", sp.nodeBuf, sp.nodeCap, g.NodeData())
	if err != nil {
		return err
	}
	sp.edgeBuf, sp.edgeCap, err = sp.uploadInstances("edge-instances", sp.edgeBuf, sp.edgeCap, g.EdgeData())
	if err != nil {
		return err
	}
	sp.nodeN = g.NodeCount()
	sp.edgeN = g.EdgeCount()
	return nil
}

func (sp *ShaderPipeline) uploadInstances(label string, buf *wgpu.Buffer, capFloats int, data []float32) (*wgpu.Buffer, int, error) {
	if len(data) == 0 {
		return buf, capFloats, nil
	}
	if buf == nil || len(data) > capFloats {
		if buf != nil {
			buf.Release()
		}
		// Grow with headroom so steady node additions do not reallocate
		// every frame.
		newCap := len(data) + len(data)/2
		nb, err := sp.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: label,
			Size:  uint64(newCap * 4),
			Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, 0, deviceErr("grow "+label, err)
		}
		buf, capFloats = nb, newCap
	}
	if err := sp.queue.WriteBuffer(buf, 0, wgpu.ToBytes(data)); err != nil {
		return buf, capFloats, deviceErr("write "+label, err)
	}
	return buf, capFloats, nil
}

// Render issues the draw calls into an open render pass: edges first, then
// nodes on top. Returns the number of draw calls for the governor.
func (sp *ShaderPipeline) Render(rp *wgpu.RenderPassEncoder) int {
	draws := 0
	if sp.edgeN > 0 && sp.edgeBuf != nil {
		rp.SetPipeline(sp.edgePipe)
		rp.SetBindGroup(0, sp.bindGroup, nil)
		rp.SetVertexBuffer(0, sp.edgeBuf, 0, wgpu.WholeSize)
		rp.Draw(uint32(6*maxInt(sp.profile.EdgeSegments, 1)), uint32(sp.edgeN), 0, 0)
		draws++
	}
	if sp.nodeN > 0 && sp.nodeBuf != nil {
		rp.SetPipeline(sp.nodePipe)
		rp.SetBindGroup(0, sp.bindGroup, nil)
		rp.SetVertexBuffer(0, sp.nodeBuf, 0, wgpu.WholeSize)
		rp.Draw(6, uint32(sp.nodeN), 0, 0)
		draws++
	}
	return draws
}

// Release frees every GPU resource. Safe to call on a partially built
// pipeline and more than once.
func (sp *ShaderPipeline) Release() {
	for _, b := range []*wgpu.Buffer{sp.frameBuf, sp.configBuf, sp.nodeBuf, sp.edgeBuf} {
		if b != nil {
			b.Release()
		}
	}
	sp.frameBuf, sp.configBuf, sp.nodeBuf, sp.edgeBuf = nil, nil, nil, nil
	sp.nodeCap, sp.edgeCap, sp.nodeN, sp.edgeN = 0, 0, 0, 0

	if sp.nodePipe != nil {
		sp.nodePipe.Release()
		sp.nodePipe = nil
	}
	if sp.edgePipe != nil {
		sp.edgePipe.Release()
		sp.edgePipe = nil
	}
	if sp.bindGroup != nil {
		sp.bindGroup.Release()
		sp.bindGroup = nil
	}
	if sp.bindLay != nil {
		sp.bindLay.Release()
		sp.bindLay = nil
	}
}

// Reinit rebuilds all GPU resources after device loss. The caller supplies
// the replacement device; geometry must be re-uploaded afterwards.
func (sp *ShaderPipeline) Reinit(device *wgpu.Device, format wgpu.TextureFormat) error {
	sp.Release()
	sp.device = device
	sp.queue = device.GetQueue()
	sp.format = format
	return sp.init()
}

func deviceErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrDeviceLost, err)
}

func boolFlag(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
