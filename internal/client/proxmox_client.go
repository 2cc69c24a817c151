package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/skyden/vps-platform/provisioning-service/internal/config"
	"github.com/skyden/vps-platform/provisioning-service/internal/models"
)

// ProxmoxClient manages LXC containers on a single Proxmox node over
// its REST API. Container creation is the slowest external call in the
// system, observed at several seconds, so every request carries the
// configured timeout.
type ProxmoxClient struct {
	baseURL    string
	node       string
	storage    string
	bridge     string
	gateway    string
	template   string
	authHeader string
	httpClient *http.Client
}

func NewProxmoxClient(cfg config.ProxmoxConfig) *ProxmoxClient {
	return &ProxmoxClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		node:       cfg.Node,
		storage:    cfg.Storage,
		bridge:     cfg.Bridge,
		gateway:    cfg.Gateway,
		template:   cfg.Template,
		authHeader: fmt.Sprintf("PVEAPIToken=%s=%s", cfg.TokenID, cfg.TokenSecret),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// NextID asks the cluster for the next free vmid.
func (c *ProxmoxClient) NextID(ctx context.Context) (int, error) {
	var raw json.RawMessage
	if err := c.request(ctx, http.MethodGet, "/cluster/nextid", nil, &raw); err != nil {
		return 0, err
	}
	// Proxmox returns the id as a JSON string.
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("decode nextid: %w", err)
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse nextid %q: %w", s, err)
	}
	return id, nil
}

// CreateContainer creates and starts an LXC container.
func (c *ProxmoxClient) CreateContainer(ctx context.Context, spec *models.ContainerSpec) error {
	log.Printf("[proxmox] Creating LXC %d (%s / %s)", spec.VMID, spec.Hostname, spec.IP)

	form := url.Values{}
	form.Set("vmid", strconv.Itoa(spec.VMID))
	form.Set("hostname", spec.Hostname)
	form.Set("ostemplate", c.template)
	form.Set("memory", strconv.Itoa(spec.MemoryMB))
	form.Set("cores", strconv.Itoa(spec.Cores))
	form.Set("rootfs", fmt.Sprintf("%s:%d", c.storage, spec.DiskGB))
	form.Set("net0", fmt.Sprintf("name=eth0,bridge=%s,ip=%s/32,gw=%s", c.bridge, spec.IP, c.gateway))
	form.Set("password", spec.Password)
	form.Set("start", "1")
	form.Set("unprivileged", "1")
	form.Set("features", "nesting=1")
	form.Set("nameserver", "8.8.8.8 1.1.1.1")

	if err := c.requestForm(ctx, http.MethodPost, fmt.Sprintf("/nodes/%s/lxc", c.node), form, nil); err != nil {
		return err
	}

	log.Printf("[proxmox] LXC %d created", spec.VMID)
	return nil
}

// DeleteContainer stops (best-effort) and destroys a container.
func (c *ProxmoxClient) DeleteContainer(ctx context.Context, vmid int) error {
	if err := c.requestForm(ctx, http.MethodPost,
		fmt.Sprintf("/nodes/%s/lxc/%d/status/stop", c.node, vmid), nil, nil); err != nil {
		log.Printf("[proxmox] Stop before delete failed for %d: %v", vmid, err)
	}

	if err := c.request(ctx, http.MethodDelete,
		fmt.Sprintf("/nodes/%s/lxc/%d", c.node, vmid), nil, nil); err != nil {
		return err
	}

	log.Printf("[proxmox] LXC %d deleted", vmid)
	return nil
}

// RebootContainer restarts a running container.
func (c *ProxmoxClient) RebootContainer(ctx context.Context, vmid int) error {
	return c.requestForm(ctx, http.MethodPost,
		fmt.Sprintf("/nodes/%s/lxc/%d/status/reboot", c.node, vmid), nil, nil)
}

// ContainerStatus reads the live state of one container.
func (c *ProxmoxClient) ContainerStatus(ctx context.Context, vmid int) (*models.ContainerStatus, error) {
	var data struct {
		Status string  `json:"status"`
		CPU    float64 `json:"cpu"`
		Mem    int64   `json:"mem"`
		MaxMem int64   `json:"maxmem"`
		Uptime int64   `json:"uptime"`
	}
	if err := c.request(ctx, http.MethodGet,
		fmt.Sprintf("/nodes/%s/lxc/%d/status/current", c.node, vmid), nil, &data); err != nil {
		return nil, err
	}
	return &models.ContainerStatus{
		Running:    data.Status == "running",
		CPUPct:     data.CPU * 100,
		MemUsedMB:  data.Mem / 1024 / 1024,
		MemTotalMB: data.MaxMem / 1024 / 1024,
		UptimeSec:  data.Uptime,
	}, nil
}

// NodeStatus reads the hypervisor host's utilization.
func (c *ProxmoxClient) NodeStatus(ctx context.Context) (*models.NodeStatus, error) {
	var data struct {
		CPU    float64 `json:"cpu"`
		Memory struct {
			Used  int64 `json:"used"`
			Total int64 `json:"total"`
		} `json:"memory"`
	}
	if err := c.request(ctx, http.MethodGet,
		fmt.Sprintf("/nodes/%s/status", c.node), nil, &data); err != nil {
		return nil, err
	}
	return &models.NodeStatus{
		CPUPct:     data.CPU * 100,
		MemUsedGB:  data.Memory.Used / 1024 / 1024 / 1024,
		MemTotalGB: data.Memory.Total / 1024 / 1024 / 1024,
	}, nil
}

// request performs a call against /api2/json and decodes the "data"
// envelope into out. Non-2xx responses become errors carrying the body.
func (c *ProxmoxClient) request(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api2/json"+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("proxmox %s %s returned %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out != nil {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return fmt.Errorf("decode response: %w (body: %s)", err, string(respBody))
		}
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

func (c *ProxmoxClient) requestForm(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	return c.request(ctx, method, path, body, out)
}
