// Package config loads the two YAML configuration files the CLI accepts
// as defaults underneath explicit flags: acquisition.yaml (camera, acq
// mode, tracking, color) and storage.yaml (save destination and
// layout), continuing the teacher's config_loader.go shape of one
// LoadXConfig(path) (*Cfg, error) function per file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TriggerConfig mirrors spec §6.5's trigger/exposure options.
type TriggerConfig struct {
	Mode          string   `yaml:"mode"`
	ExposeOutMode string   `yaml:"expose_out_mode"`
	Exposure      string   `yaml:"exposure"` // e.g. "10ms", "500us"
	VTMExposures  []string `yaml:"vtm_exposures"`
}

// RegionConfig mirrors --sbin/--pbin/--rois.
type RegionConfig struct {
	SBin int      `yaml:"sbin"`
	PBin int      `yaml:"pbin"`
	ROIs []string `yaml:"rois"` // each "sA1,sA2,pA1,pA2"
}

// TrackingConfig mirrors the --track-* options. CPUOnly and Trajectory
// are pointers so an absent YAML key (nil) is distinguishable from an
// explicit `false`, which a plain bool can't represent.
type TrackingConfig struct {
	LinkFrames  int     `yaml:"link_frames"`
	MaxDistance float64 `yaml:"max_distance"`
	CPUOnly     *bool   `yaml:"cpu_only"`
	Trajectory  *bool   `yaml:"trajectory"`
}

// ColorConfig mirrors the --color-* options. CPUOnly is a pointer for
// the same nil-vs-false reason as TrackingConfig.CPUOnly.
type ColorConfig struct {
	WBScaleRed   float64 `yaml:"wb_scale_red"`
	WBScaleGreen float64 `yaml:"wb_scale_green"`
	WBScaleBlue  float64 `yaml:"wb_scale_blue"`
	DebayerAlg   string  `yaml:"debayer_alg"` // "nearest" | "bilinear"
	CPUOnly      *bool   `yaml:"cpu_only"`
}

// CameraConfig mirrors --cam-index / --gen-data.
type CameraConfig struct {
	Index      int     `yaml:"index"`
	GenDataFPS float64 `yaml:"gen_data_fps"` // > 0 selects the fake generator
}

// AcquisitionConfig is the top-level structure for acquisition.yaml.
type AcquisitionConfig struct {
	Camera         CameraConfig   `yaml:"camera"`
	Trigger        TriggerConfig  `yaml:"trigger"`
	Region         RegionConfig   `yaml:"region"`
	Tracking       TrackingConfig `yaml:"tracking"`
	Color          ColorConfig    `yaml:"color"`
	AcqMode        string         `yaml:"acq_mode"` // snap-seq|snap-circ-buffer|snap-time-lapse|live-circ-buffer|live-time-lapse
	AcqFrames      int            `yaml:"acq_frames"`
	BufferFrames   int            `yaml:"buffer_frames"`
	Allocator      string         `yaml:"allocator"` // default|align16|align32|align4k
	TimeLapseDelay string         `yaml:"time_lapse_delay"`
}

// StorageConfig is the top-level structure for storage.yaml. TiffOptFull
// is a pointer for the same nil-vs-false reason as TrackingConfig.CPUOnly.
type StorageConfig struct {
	SaveAs        string `yaml:"save_as"` // none|prd|tiff|big-tiff
	SaveDir       string `yaml:"save_dir"`
	SaveDigits    int    `yaml:"save_digits"`
	SaveFirst     int    `yaml:"save_first"`
	SaveLast      int    `yaml:"save_last"`
	SaveStackSize string `yaml:"save_stack_size"` // e.g. "512M", "4G"
	TiffOptFull   *bool  `yaml:"save_tiff_opt_full"`
}

// LoadAcquisitionConfig reads and parses acquisition.yaml.
func LoadAcquisitionConfig(path string) (*AcquisitionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read acquisition config: %w", err)
	}
	var cfg AcquisitionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse acquisition config: %w", err)
	}
	return &cfg, nil
}

// LoadStorageConfig reads and parses storage.yaml.
func LoadStorageConfig(path string) (*StorageConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read storage config: %w", err)
	}
	var cfg StorageConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse storage config: %w", err)
	}
	return &cfg, nil
}
