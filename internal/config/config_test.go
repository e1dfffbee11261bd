package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_defaults(t *testing.T) {
	os.Clearenv()
	c := Load()
	if c.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want 0.0.0.0", c.Host)
	}
	if c.Port != 8080 {
		t.Errorf("Port = %d, want 8080", c.Port)
	}
	if c.DefaultCapturesPath != "/captures" {
		t.Errorf("DefaultCapturesPath = %q, want /captures", c.DefaultCapturesPath)
	}
	if c.DefaultNamingPattern != "{job_name}_{num:06d}_{timestamp}" {
		t.Errorf("DefaultNamingPattern = %q", c.DefaultNamingPattern)
	}
	if c.TZ != "UTC" {
		t.Errorf("TZ = %q, want UTC", c.TZ)
	}
	if c.FFmpegTimeout != 30*time.Second {
		t.Errorf("FFmpegTimeout = %v, want 30s", c.FFmpegTimeout)
	}
	if c.WorkerCount != 5 {
		t.Errorf("WorkerCount = %d, want 5", c.WorkerCount)
	}
	if c.TickInterval != 10*time.Second {
		t.Errorf("TickInterval = %v, want 10s", c.TickInterval)
	}
}

func TestLoad_overrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("PORT", "9090")
	os.Setenv("TZ", "America/Chicago")
	os.Setenv("FFMPEG_TIMEOUT", "45")
	os.Setenv("TIMELAPSE_WORKER_COUNT", "8")
	c := Load()
	if c.Port != 9090 {
		t.Errorf("Port = %d, want 9090", c.Port)
	}
	if c.TZ != "America/Chicago" {
		t.Errorf("TZ = %q, want America/Chicago", c.TZ)
	}
	if c.FFmpegTimeout != 45*time.Second {
		t.Errorf("FFmpegTimeout = %v, want 45s", c.FFmpegTimeout)
	}
	if c.WorkerCount != 8 {
		t.Errorf("WorkerCount = %d, want 8", c.WorkerCount)
	}
}

func TestLoad_tickIntervalDurationString(t *testing.T) {
	os.Clearenv()
	os.Setenv("TIMELAPSE_TICK_INTERVAL", "5s")
	c := Load()
	if c.TickInterval != 5*time.Second {
		t.Errorf("TickInterval = %v, want 5s", c.TickInterval)
	}
}
