package docker

import (
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
)

// SandboxLimits locks the container down: no network, read-only root, no
// capabilities, bounded memory, CPU and process count. The artifact is the
// only thing mounted, read-only.
func SandboxLimits(hostPath, containerPath string) *container.HostConfig {
	pids := int64(64)
	return &container.HostConfig{
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		NetworkMode:    "none",
		Tmpfs:          map[string]string{"/tmp": "rw,noexec,nosuid,size=64m"},
		Resources: container.Resources{
			Memory:    512 * 1024 * 1024,
			NanoCPUs:  1_000_000_000,
			PidsLimit: &pids,
		},
		Mounts: []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   hostPath,
			Target:   containerPath,
			ReadOnly: true,
		}},
	}
}
