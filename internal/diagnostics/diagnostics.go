// internal/diagnostics/diagnostics.go
package diagnostics

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pricematch/pricematch/internal/config"
)

var ErrNoHost = errors.New("no host to diagnose")

// DefaultPorts are probed for TCP connect latency.
var DefaultPorts = []int{443, 80}

type HostInfo struct {
	Hostname        string   `json:"hostname"`
	OS              string   `json:"os"`
	Platform        string   `json:"platform"`
	PlatformVersion string   `json:"platform_version"`
	KernelVersion   string   `json:"kernel_version"`
	Arch            string   `json:"arch"`
	CPUCores        int      `json:"cpu_cores"`
	MemoryTotal     uint64   `json:"memory_total"`
	Interfaces      []string `json:"interfaces"`
}

type DNSResult struct {
	Addresses []string      `json:"addresses"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

type TCPResult struct {
	Port      int           `json:"port"`
	Attempts  int           `json:"attempts"`
	Succeeded int           `json:"succeeded"`
	Min       time.Duration `json:"min"`
	Avg       time.Duration `json:"avg"`
	Max       time.Duration `json:"max"`
	LastError string        `json:"last_error,omitempty"`
}

type HTTPResult struct {
	URL        string        `json:"url"`
	StatusCode int           `json:"status_code"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

type Report struct {
	Host      string      `json:"host"`
	StartedAt time.Time   `json:"started_at"`
	LogFile   string      `json:"log_file"`
	Local     *HostInfo   `json:"local"`
	DNS       DNSResult   `json:"dns"`
	TCP       []TCPResult `json:"tcp"`
	HTTP      HTTPResult  `json:"http"`
}

// Reachable is true when the name resolved and at least one port accepted a connection.
func (r *Report) Reachable() bool {
	if r.DNS.Error != "" {
		return false
	}
	for _, t := range r.TCP {
		if t.Succeeded > 0 {
			return true
		}
	}
	return false
}

type Diagnostics struct {
	cfg      config.DiagnosticsConfig
	ports    []int
	scheme   string
	httpPort int // 0 keeps the scheme default
	resolver *net.Resolver
	client   *http.Client
	console  io.Writer
	now      func() time.Time
}

func New(cfg config.DiagnosticsConfig) *Diagnostics {
	if cfg.Samples < 1 {
		cfg.Samples = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}

	return &Diagnostics{
		cfg:      cfg,
		ports:    DefaultPorts,
		scheme:   "https",
		resolver: net.DefaultResolver,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSHandshakeTimeout: cfg.Timeout,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		console: os.Stdout,
		now:     time.Now,
	}
}

// Run resolves host, samples TCP connects, issues one GET and collects local
// host info. Every step is logged to the console and to a timestamped file.
// Individual check failures are recorded in the report, not returned.
func (d *Diagnostics) Run(ctx context.Context, host string) (*Report, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		host = d.cfg.Host
	}
	if host == "" {
		return nil, ErrNoHost
	}

	started := d.now()
	log, logFile, closer, err := d.openLog(started)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	report := &Report{Host: host, StartedAt: started, LogFile: logFile}
	log.WithFields(logrus.Fields{
		"host":    host,
		"samples": d.cfg.Samples,
		"timeout": d.cfg.Timeout,
	}).Info("Starting network diagnostics")

	report.Local = d.hostInfo(log)

	report.DNS = d.lookup(ctx, host)
	entry := log.WithField("duration", report.DNS.Duration)
	if report.DNS.Error != "" {
		entry.WithField("error", report.DNS.Error).Error("DNS lookup failed")
	} else {
		entry.WithField("addresses", strings.Join(report.DNS.Addresses, ",")).Info("DNS lookup")
	}

	for _, port := range d.ports {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := d.probeTCP(ctx, host, port)
		report.TCP = append(report.TCP, res)

		fields := logrus.Fields{
			"port":      res.Port,
			"succeeded": fmt.Sprintf("%d/%d", res.Succeeded, res.Attempts),
		}
		if res.Succeeded > 0 {
			fields["min"], fields["avg"], fields["max"] = res.Min, res.Avg, res.Max
		}
		if res.LastError != "" {
			fields["error"] = res.LastError
		}
		if res.Succeeded == 0 {
			log.WithFields(fields).Error("TCP connect failed")
		} else {
			log.WithFields(fields).Info("TCP connect")
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	report.HTTP = d.probeHTTP(ctx, host)
	httpEntry := log.WithFields(logrus.Fields{
		"url":      report.HTTP.URL,
		"duration": report.HTTP.Duration,
	})
	if report.HTTP.Error != "" {
		httpEntry.WithField("error", report.HTTP.Error).Error("HTTP request failed")
	} else {
		httpEntry.WithField("status", report.HTTP.StatusCode).Info("HTTP request")
	}

	log.WithFields(logrus.Fields{
		"host":      host,
		"reachable": report.Reachable(),
		"log_file":  logFile,
	}).Info("Diagnostics finished")

	return report, nil
}

func (d *Diagnostics) openLog(started time.Time) (*logrus.Logger, string, io.Closer, error) {
	if err := os.MkdirAll(d.cfg.LogDir, 0o755); err != nil {
		return nil, "", nil, fmt.Errorf("failed to create diagnostics log directory: %w", err)
	}
	path := filepath.Join(d.cfg.LogDir, fmt.Sprintf("diagnostics_%s.log", started.Format("20060102_150405")))

	file := &lumberjack.Logger{Filename: path, LocalTime: true}

	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000",
		FullTimestamp:   true,
		DisableColors:   true,
	})
	l.SetOutput(io.MultiWriter(d.console, file))
	return l, path, file, nil
}

func (d *Diagnostics) lookup(ctx context.Context, host string) DNSResult {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	addrs, err := d.resolver.LookupHost(ctx, host)
	res := DNSResult{Addresses: addrs, Duration: time.Since(start)}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func (d *Diagnostics) probeTCP(ctx context.Context, host string, port int) TCPResult {
	res := TCPResult{Port: port, Attempts: d.cfg.Samples}
	dialer := &net.Dialer{Timeout: d.cfg.Timeout, Resolver: d.resolver}
	addr := net.JoinHostPort(host, fmt.Sprint(port))

	var total time.Duration
	for i := 0; i < d.cfg.Samples; i++ {
		if ctx.Err() != nil {
			res.Attempts = i
			break
		}

		start := time.Now()
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		elapsed := time.Since(start)
		if err != nil {
			res.LastError = err.Error()
			continue
		}
		conn.Close()

		if res.Succeeded == 0 || elapsed < res.Min {
			res.Min = elapsed
		}
		if elapsed > res.Max {
			res.Max = elapsed
		}
		total += elapsed
		res.Succeeded++
	}

	if res.Succeeded > 0 {
		res.Avg = total / time.Duration(res.Succeeded)
	}
	return res
}

func (d *Diagnostics) probeHTTP(ctx context.Context, host string) HTTPResult {
	target := host
	if d.httpPort != 0 {
		target = net.JoinHostPort(host, fmt.Sprint(d.httpPort))
	}
	res := HTTPResult{URL: fmt.Sprintf("%s://%s/", d.scheme, target)}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.URL, nil)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	req.Header.Set("User-Agent", "pricematch-diagnostics/1.0")

	start := time.Now()
	resp, err := d.client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	res.StatusCode = resp.StatusCode
	return res
}

func (d *Diagnostics) hostInfo(log *logrus.Logger) *HostInfo {
	info := &HostInfo{}

	if h, err := host.Info(); err != nil {
		log.WithError(err).Warn("Failed to get host info")
	} else {
		info.Hostname = h.Hostname
		info.OS = h.OS
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		info.KernelVersion = h.KernelVersion
		info.Arch = h.KernelArch
	}
	if info.OS == "" {
		info.OS = runtime.GOOS
	}
	if info.Arch == "" {
		info.Arch = runtime.GOARCH
	}

	if cores, err := cpu.Counts(true); err != nil {
		log.WithError(err).Warn("Failed to get CPU info")
	} else {
		info.CPUCores = cores
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		log.WithError(err).Warn("Failed to get memory info")
	} else {
		info.MemoryTotal = vm.Total
	}

	if ifaces, err := psnet.Interfaces(); err != nil {
		log.WithError(err).Warn("Failed to list network interfaces")
	} else {
		for _, iface := range ifaces {
			for _, addr := range iface.Addrs {
				info.Interfaces = append(info.Interfaces, iface.Name+" "+addr.Addr)
			}
		}
	}

	log.WithFields(logrus.Fields{
		"hostname":   info.Hostname,
		"os":         info.OS,
		"platform":   strings.TrimSpace(info.Platform + " " + info.PlatformVersion),
		"kernel":     info.KernelVersion,
		"arch":       info.Arch,
		"cpu_cores":  info.CPUCores,
		"memory":     info.MemoryTotal,
		"interfaces": strings.Join(info.Interfaces, "; "),
	}).Info("Local host")

	return info
}
