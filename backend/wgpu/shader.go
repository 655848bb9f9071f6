package wgpu

import (
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// shaderModule owns a compiled HAL shader module.
type shaderModule struct {
	raw    hal.ShaderModule
	device hal.Device
	label  string
}

func (s *shaderModule) Destroy() { s.device.DestroyShaderModule(s.raw) }

// CompileShader compiles WGSL source to SPIR-V and creates the shader
// module. Register the result with the engine's registry under KindShader.
func (a *Adapter) CompileShader(label, wgslSource string) (any, error) {
	spirv, err := compileWGSL(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("wgpu: compile shader %q: %w", label, err)
	}

	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: label,
		Source: hal.ShaderSource{
			SPIRV: spirv,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create shader module %q: %w", label, err)
	}
	return &shaderModule{raw: module, device: a.device, label: label}, nil
}

// compileWGSL compiles WGSL to SPIR-V little-endian 32-bit words.
func compileWGSL(wgslSource string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, err
	}

	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return spirv, nil
}
