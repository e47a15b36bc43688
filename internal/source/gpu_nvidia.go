package source

import (
	"bufio"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
)

const nvidiaQuery = "index,uuid,name,utilization.gpu,memory.used,memory.total,temperature.gpu,clocks.sm,power.draw,fan.speed"

// CommandRunner runs an external tool and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) (string, error)

func execRunner(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return string(out), err
}

// NvidiaSMI queries NVIDIA devices through the nvidia-smi tool.
type NvidiaSMI struct {
	Binary string
	Run    CommandRunner
}

func NewNvidiaSMI() *NvidiaSMI { return &NvidiaSMI{Binary: "nvidia-smi", Run: execRunner} }

func (n *NvidiaSMI) Name() string { return "gpu/nvidia" }

func (n *NvidiaSMI) Supported(ctx context.Context) bool {
	if _, err := exec.LookPath(n.Binary); err != nil {
		return false
	}
	gpus, err := n.SampleGPUs(ctx)
	return err == nil && len(gpus) > 0
}

func (n *NvidiaSMI) SampleGPUs(ctx context.Context) ([]model.GPU, error) {
	out, err := n.Run(ctx, n.Binary, "--query-gpu="+nvidiaQuery, "--format=csv,noheader,nounits")
	if err != nil {
		return nil, err
	}
	return parseNvidiaCSV(out), nil
}

func parseNvidiaCSV(out string) []model.GPU {
	var gpus []model.GPU
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		parts := strings.Split(sc.Text(), ",")
		if len(parts) < 10 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		id := parts[1]
		if id == "" || notAvailable(id) {
			id = "nvidia" + parts[0]
		}
		g := model.GPU{
			ID:         id,
			Name:       parts[2],
			Vendor:     "NVIDIA",
			Util:       optFloat(parts[3]),
			TempC:      optFloat(parts[6]),
			ClockMHz:   optFloat(parts[7]),
			PowerW:     optFloat(parts[8]),
			FanPercent: optFloat(parts[9]),
		}
		if used := optFloat(parts[4]); used != nil {
			g.MemUsedBytes = model.Uint(uint64(*used) * mib)
		}
		if total := optFloat(parts[5]); total != nil {
			g.MemTotalBytes = model.Uint(uint64(*total) * mib)
		}
		gpus = append(gpus, g)
	}
	return gpus
}

const mib = 1024 * 1024

// nvidia-smi prints "[N/A]" or "[Not Supported]" for fields a board lacks.
func notAvailable(s string) bool { return strings.HasPrefix(s, "[") || s == "N/A" }

func optFloat(s string) *float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" || notAvailable(s) {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
