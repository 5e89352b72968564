package videohost

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/manthysbr/aule-weather/internal/core/ports"
)

const (
	labelManaged  = "aule.managed"
	labelRenderID = "aule.render_id"
	containerOut  = "/out"
	namePrefix    = "aule-render-"

	// outcomes remembered after their container is removed
	defaultFinishedCap = 256
)

// dockerAPI is the part of the docker client the host uses.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
}

var _ ports.VideoHost = (*DockerHost)(nil)

// DockerHost renders a still image plus narration into an mp4 with an ffmpeg
// container. Output lands in mediaDir and is served under {publicURL}/v1/media/.
type DockerHost struct {
	cli       dockerAPI
	image     string
	mediaDir  string
	publicURL string

	mu          sync.Mutex
	finished    map[string]domain.ProviderStatus
	finishOrder []string // oldest first
	finishedCap int
}

// NewDockerHost connects to the local daemon the same way the docker CLI does.
func NewDockerHost(imageRef, mediaDir, publicURL string) (*DockerHost, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newDockerHost(cli, imageRef, mediaDir, publicURL)
}

func newDockerHost(cli dockerAPI, imageRef, mediaDir, publicURL string) (*DockerHost, error) {
	abs, err := filepath.Abs(mediaDir)
	if err != nil {
		return nil, fmt.Errorf("resolve media dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DockerHost{
		cli:         cli,
		image:       imageRef,
		mediaDir:    abs,
		publicURL:   strings.TrimRight(publicURL, "/"),
		finished:    make(map[string]domain.ProviderStatus),
		finishedCap: defaultFinishedCap,
	}, nil
}

// MediaDir is where finished videos are written.
func (h *DockerHost) MediaDir() string { return h.mediaDir }

func (h *DockerHost) SubmitRender(ctx context.Context, req domain.RenderRequest) (string, error) {
	if req.SourceImageURL == "" || req.SourceAudioURL == "" {
		return "", &domain.ProviderError{StatusCode: 400, Message: "render needs both an image and an audio source"}
	}
	id := uuid.New().String()

	cfg := &container.Config{
		Image: h.image,
		Cmd:   ffmpegArgs(req, containerOut+"/"+id+".mp4"),
		Labels: map[string]string{
			labelManaged:  "true",
			labelRenderID: id,
		},
	}
	hostCfg := &container.HostConfig{
		// ffmpeg fetches the presigned sources over http
		NetworkMode: "bridge",
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: h.mediaDir,
			Target: containerOut,
		}},
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,noexec,nosuid,size=64m"},
	}

	name := namePrefix + id
	resp, err := h.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if cerrdefs.IsNotFound(err) {
		reader, pullErr := h.cli.ImagePull(ctx, h.image, image.PullOptions{})
		if pullErr != nil {
			return "", &domain.ProviderError{Message: fmt.Sprintf("pull image %s: %v", h.image, pullErr), Err: pullErr}
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
		resp, err = h.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	}
	if err != nil {
		return "", &domain.ProviderError{Message: "create render container: " + err.Error(), Err: err}
	}

	if err := h.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = h.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", &domain.ProviderError{Message: "start render container: " + err.Error(), Err: err}
	}
	return id, nil
}

// GetStatus maps the container state: running or created is preparing, exit 0 is
// ready and any other exit is errored. Finished containers are removed and
// their outcome remembered; the oldest outcomes are dropped past finishedCap.
func (h *DockerHost) GetStatus(ctx context.Context, externalID string) (domain.ProviderStatus, error) {
	h.mu.Lock()
	if st, ok := h.finished[externalID]; ok {
		h.mu.Unlock()
		return st, nil
	}
	h.mu.Unlock()

	inspect, err := h.cli.ContainerInspect(ctx, namePrefix+externalID)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return domain.ProviderStatus{}, &domain.ProviderError{StatusCode: 404, Message: "render " + externalID + " not found", Err: err}
		}
		return domain.ProviderStatus{}, &domain.ProviderError{Message: err.Error(), Err: err}
	}
	if inspect.ContainerJSONBase == nil || inspect.State == nil {
		return domain.ProviderStatus{State: domain.ProviderPreparing}, nil
	}

	state := inspect.State
	if state.Status != "exited" && state.Status != "dead" {
		return domain.ProviderStatus{State: domain.ProviderPreparing}, nil
	}

	st := domain.ProviderStatus{State: domain.ProviderReady}
	switch {
	case state.OOMKilled:
		st = domain.ProviderStatus{State: domain.ProviderErrored, ErrorDetail: "ffmpeg was killed for running out of memory"}
	case state.ExitCode != 0:
		detail := fmt.Sprintf("ffmpeg exited with code %d", state.ExitCode)
		if state.Error != "" {
			detail += ": " + state.Error
		}
		st = domain.ProviderStatus{State: domain.ProviderErrored, ErrorDetail: detail}
	}

	h.remember(externalID, st)
	_ = h.cli.ContainerRemove(ctx, namePrefix+externalID, container.RemoveOptions{Force: true})
	return st, nil
}

func (h *DockerHost) remember(id string, st domain.ProviderStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.finished[id]; !ok {
		h.finishOrder = append(h.finishOrder, id)
	}
	h.finished[id] = st
	for len(h.finishOrder) > h.finishedCap {
		delete(h.finished, h.finishOrder[0])
		h.finishOrder = h.finishOrder[1:]
	}
}

func (h *DockerHost) PlayerURL(externalID string) string {
	return h.publicURL + "/v1/media/" + externalID + ".mp4"
}

// Sweep removes render containers left behind by an earlier process.
func (h *DockerHost) Sweep(ctx context.Context) (int, error) {
	args := filters.NewArgs()
	args.Add("label", labelManaged+"=true")
	containers, err := h.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return 0, fmt.Errorf("list render containers: %w", err)
	}
	removed := 0
	for _, c := range containers {
		if c.State == "running" {
			continue
		}
		if err := h.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil && !cerrdefs.IsNotFound(err) {
			return removed, fmt.Errorf("remove container %s: %w", c.ID, err)
		}
		removed++
	}
	return removed, nil
}

// ffmpegArgs loops the backdrop for the length of the narration.
func ffmpegArgs(req domain.RenderRequest, out string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-loop", "1", "-i", req.SourceImageURL,
		"-i", req.SourceAudioURL,
		"-vf", "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2",
		"-c:v", "libx264", "-tune", "stillimage", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "160k",
		"-shortest", "-movflags", "+faststart",
		out,
	}
}
