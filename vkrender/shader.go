package vkrender

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
	lin "github.com/xlab/linmath"
)

// pushConstants is the transform block every vertex shader receives. The
// three matrices are pushed as one range and flushed lazily: only when a
// SetMat4 marked them dirty since the last frame that pushed them.
type pushConstants struct {
	model      lin.Mat4x4
	view       lin.Mat4x4
	projection lin.Mat4x4
}

const pushConstantsSize = uint32(unsafe.Sizeof(pushConstants{}))

func (d *Device) LoadShaderModuleFromFile(file string) (vk.ShaderModule, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return vk.ShaderModule(vk.NullHandle), err
	}

	var module vk.ShaderModule
	err = vk.Error(vk.CreateShaderModule(d.VKDevice, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(data)),
		PCode:    sliceUint32(data),
	}, nil, &module))
	if err != nil {
		return module, fmt.Errorf("create shader module from %s: %w", file, err)
	}
	return module, nil
}

// ShaderProgram pairs a vertex and fragment stage with the graphics pipeline
// compiled from them. The pipeline belongs to the registry and is nil until
// the first successful build; drawing skips programs that are not ready.
type ShaderProgram struct {
	name     string
	renderer *Renderer
	log      *log.Logger

	vert vk.ShaderModule
	frag vk.ShaderModule

	pipeline vk.Pipeline
	built    bool

	constants pushConstants
	dirty     bool
}

func (p *ShaderProgram) Name() string {
	return p.name
}

// IsValid reports whether a pipeline has been compiled for this program.
func (p *ShaderProgram) IsValid() bool {
	return p.built
}

func (p *ShaderProgram) Bind() {
	p.renderer.bindProgram(p)
}

func (p *ShaderProgram) Unbind() {
	p.renderer.unbindProgram(p)
}

// SetMat4 updates one of the transform matrices. Anything but the three
// known names is ignored with a warning, since this backend has no general
// uniform storage.
func (p *ShaderProgram) SetMat4(name string, m *lin.Mat4x4) {
	switch name {
	case "model":
		p.constants.model = *m
	case "view":
		p.constants.view = *m
	case "projection":
		p.constants.projection = *m
	default:
		p.log.Printf("shader %s: unknown matrix uniform %q", p.name, name)
		return
	}
	p.dirty = true
}

func (p *ShaderProgram) SetFloat(name string, v float32) {
	p.log.Printf("shader %s: float uniform %q unsupported, push constants carry matrices only", p.name, name)
}

func (p *ShaderProgram) SetInt(name string, v int32) {
	p.log.Printf("shader %s: int uniform %q unsupported, push constants carry matrices only", p.name, name)
}

func (p *ShaderProgram) Destroy() {
	p.renderer.destroyProgram(p)
}

// hasPendingConstants reports whether a SetMat4 happened since the last push.
func (p *ShaderProgram) hasPendingConstants() bool {
	return p.dirty
}

func (p *ShaderProgram) clearPendingConstants() {
	p.dirty = false
}

// ShaderRegistry maps shader names to programs and owns their pipelines.
// Pipeline construction and destruction are function fields; the registry
// itself only tracks which programs exist and which are built, so the
// rebuild rules can be tested without a device.
type ShaderRegistry struct {
	log      *log.Logger
	programs map[string]*ShaderProgram

	buildFn   func(p *ShaderProgram) (vk.Pipeline, error)
	destroyFn func(pipeline vk.Pipeline)
}

func newShaderRegistry(logger *log.Logger, build func(*ShaderProgram) (vk.Pipeline, error), destroy func(vk.Pipeline)) *ShaderRegistry {
	return &ShaderRegistry{
		log:       logger,
		programs:  make(map[string]*ShaderProgram),
		buildFn:   build,
		destroyFn: destroy,
	}
}

func (r *ShaderRegistry) add(p *ShaderProgram) {
	r.programs[p.name] = p
}

func (r *ShaderRegistry) get(name string) *ShaderProgram {
	return r.programs[name]
}

func (r *ShaderRegistry) remove(name string) {
	delete(r.programs, name)
}

func (r *ShaderRegistry) count() int {
	return len(r.programs)
}

func (r *ShaderRegistry) builtCount() int {
	n := 0
	for _, p := range r.programs {
		if p.built {
			n++
		}
	}
	return n
}

// build compiles the named program's pipeline, replacing any previous one.
func (r *ShaderRegistry) build(name string) error {
	p, ok := r.programs[name]
	if !ok {
		return fmt.Errorf("shader %q not loaded", name)
	}
	return r.buildProgram(p)
}

func (r *ShaderRegistry) buildProgram(p *ShaderProgram) error {
	if p.built {
		r.destroyFn(p.pipeline)
		p.built = false
	}

	pipeline, err := r.buildFn(p)
	if err != nil {
		return fmt.Errorf("build pipeline for shader %q: %w", p.name, err)
	}
	p.pipeline = pipeline
	p.built = true
	return nil
}

// rebuildAll recompiles every registered program, used after swapchain
// recreation and after pipeline-affecting toggles. Programs that fail keep
// running as not-ready rather than aborting the rest.
func (r *ShaderRegistry) rebuildAll() {
	for _, p := range r.programs {
		if err := r.buildProgram(p); err != nil {
			r.log.Printf("%v", err)
		}
	}
}

// destroyPipelines drops every compiled pipeline, leaving the programs and
// their shader modules registered.
func (r *ShaderRegistry) destroyPipelines() {
	for _, p := range r.programs {
		if p.built {
			r.destroyFn(p.pipeline)
			p.built = false
		}
	}
}

// shaderBytecodePaths resolves a logical shader name to its two SPIR-V files
// under the backend's shader directory.
func shaderBytecodePaths(dir, name string) (vert, frag string) {
	vert = filepath.Join(dir, name+".vert.spv")
	frag = filepath.Join(dir, name+".frag.spv")
	return vert, frag
}
