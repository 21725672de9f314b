package vkrender

import (
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
	lin "github.com/xlab/linmath"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestRegistryBuildMarksProgramReady(t *testing.T) {
	builds := 0
	r := newShaderRegistry(discardLogger(),
		func(p *ShaderProgram) (vk.Pipeline, error) {
			builds++
			var pl vk.Pipeline
			return pl, nil
		},
		func(pipeline vk.Pipeline) {},
	)

	p := &ShaderProgram{name: "basic"}
	r.add(p)
	assert.False(t, p.IsValid())

	require.NoError(t, r.build("basic"))
	assert.True(t, p.IsValid())
	assert.Equal(t, 1, builds)
}

func TestRegistryBuildUnknownShader(t *testing.T) {
	r := newShaderRegistry(discardLogger(),
		func(p *ShaderProgram) (vk.Pipeline, error) { var pl vk.Pipeline; return pl, nil },
		func(pipeline vk.Pipeline) {},
	)
	assert.Error(t, r.build("missing"))
}

func TestRegistryRebuildAllCompleteness(t *testing.T) {
	destroys := 0
	r := newShaderRegistry(discardLogger(),
		func(p *ShaderProgram) (vk.Pipeline, error) { var pl vk.Pipeline; return pl, nil },
		func(pipeline vk.Pipeline) { destroys++ },
	)

	for _, name := range []string{"basic", "textured", "ui"} {
		r.add(&ShaderProgram{name: name})
		require.NoError(t, r.build(name))
	}

	// Swapchain recreation path: every previously built pipeline is
	// destroyed and a replacement compiled.
	r.rebuildAll()
	assert.Equal(t, 3, r.count())
	assert.Equal(t, 3, r.builtCount(), "rebuild must cover every loaded shader")
	assert.Equal(t, 3, destroys)
}

func TestRegistryCullToggleRebuildsWithFinalState(t *testing.T) {
	cull := false
	var builtWithCull []bool
	r := newShaderRegistry(discardLogger(),
		func(p *ShaderProgram) (vk.Pipeline, error) {
			builtWithCull = append(builtWithCull, cull)
			var pl vk.Pipeline
			return pl, nil
		},
		func(pipeline vk.Pipeline) {},
	)

	r.add(&ShaderProgram{name: "basic"})
	r.add(&ShaderProgram{name: "textured"})
	r.rebuildAll()

	// Toggle on then off, rebuilding each time as EnableCulling does.
	cull = true
	r.rebuildAll()
	cull = false
	r.rebuildAll()

	assert.Equal(t, 2, r.count(), "toggling culling must not change the shader set")
	assert.Equal(t, 2, r.builtCount())
	final := builtWithCull[len(builtWithCull)-2:]
	assert.Equal(t, []bool{false, false}, final, "pipelines must reflect the final cull state")
}

func TestRegistryFailedBuildLeavesProgramInert(t *testing.T) {
	r := newShaderRegistry(discardLogger(),
		func(p *ShaderProgram) (vk.Pipeline, error) {
			var pl vk.Pipeline
			if p.name == "broken" {
				return pl, errors.New("no bytecode")
			}
			return pl, nil
		},
		func(pipeline vk.Pipeline) {},
	)

	r.add(&ShaderProgram{name: "basic"})
	r.add(&ShaderProgram{name: "broken"})
	r.rebuildAll()

	assert.True(t, r.get("basic").IsValid())
	assert.False(t, r.get("broken").IsValid(), "failed builds must stay not-ready, not crash")
}

func TestRegistryDestroyPipelinesKeepsPrograms(t *testing.T) {
	destroys := 0
	r := newShaderRegistry(discardLogger(),
		func(p *ShaderProgram) (vk.Pipeline, error) { var pl vk.Pipeline; return pl, nil },
		func(pipeline vk.Pipeline) { destroys++ },
	)

	r.add(&ShaderProgram{name: "basic"})
	require.NoError(t, r.build("basic"))

	r.destroyPipelines()
	assert.Equal(t, 1, destroys)
	assert.Equal(t, 1, r.count())
	assert.False(t, r.get("basic").IsValid())
}

func TestShaderBytecodePaths(t *testing.T) {
	vert, frag := shaderBytecodePaths(filepath.Join("assets", "shaders"), "basic")
	assert.Equal(t, filepath.Join("assets", "shaders", "basic.vert.spv"), vert)
	assert.Equal(t, filepath.Join("assets", "shaders", "basic.frag.spv"), frag)
}

func TestSetMat4AcceptsKnownNamesOnly(t *testing.T) {
	p := &ShaderProgram{name: "basic", log: discardLogger()}

	var m lin.Mat4x4
	m.Identity()
	m[0][0] = 2
	p.SetMat4("model", &m)
	assert.True(t, p.hasPendingConstants())
	assert.Equal(t, float32(2), p.constants.model[0][0])

	p.clearPendingConstants()
	p.SetMat4("bones", &m)
	assert.False(t, p.hasPendingConstants(), "unknown names must not dirty the constants")
}

func TestPushConstantsSize(t *testing.T) {
	// Three tightly packed 4x4 float matrices.
	assert.Equal(t, uint32(192), pushConstantsSize)
}
