package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v2"

	"edge-backend/internal/core/define"
)

type Config struct {
	Port     string `yaml:"port"`
	Database struct {
		Path string `yaml:"path"` // sqlite文件路径
	} `yaml:"database"`
	JWT struct {
		Secret     string `yaml:"secret"`
		Expiration string `yaml:"expiration"`
	} `yaml:"jwt"`

	Node struct {
		ID            string `yaml:"id"`
		LocationID    string `yaml:"location_id"`
		CycleInterval string `yaml:"cycle_interval"` // 调度周期, 如 "1s"
		TaskTimeout   string `yaml:"task_timeout"`
	} `yaml:"node"`

	Monitor struct {
		SampleTimeout    string  `yaml:"sample_timeout"`
		DegradedAfter    int     `yaml:"degraded_after"`
		LinkCapacityMbps float64 `yaml:"link_capacity_mbps"`
		EnergyLevelPct   float64 `yaml:"energy_level_pct"` // 静态电量探测值 (市电节点)
		LatencyMs        float64 `yaml:"latency_ms"`       // 静态时延探测值
	} `yaml:"monitor"`

	Scheduler struct {
		EnergyThresholdPct float64 `yaml:"energy_threshold_pct"`
		LatencyThresholdMs float64 `yaml:"latency_threshold_ms"`
		BandwidthFloorMbps float64 `yaml:"bandwidth_floor_mbps"`
		RetentionWindow    string  `yaml:"retention_window"`
		QueueCapacity      int     `yaml:"queue_capacity"`
	} `yaml:"scheduler"`

	Anomaly struct {
		HighZScore     float64             `yaml:"high_z_score"`
		HighComposite  float64             `yaml:"high_composite"`
		NormalZScore   float64             `yaml:"normal_z_score"`
		NormalComposit float64             `yaml:"normal_composite"`
		DeferZScore    float64             `yaml:"defer_z_score"`
		TierMargin     float64             `yaml:"tier_margin"`
		BatchCapacity  int                 `yaml:"batch_capacity"`
		BatchInterval  string              `yaml:"batch_interval"`
		PriorMean      float64             `yaml:"prior_mean"`
		PriorStdDev    float64             `yaml:"prior_std_dev"`
		Tiers          []define.StreamTier `yaml:"tiers"`
	} `yaml:"anomaly"`

	Consensus struct {
		RoundTimeout   string `yaml:"round_timeout"`
		MaxProposalAge string `yaml:"max_proposal_age"`
		Peers          []struct {
			ID   string `yaml:"id"`
			Addr string `yaml:"addr"` // ws地址, 本节点留空
		} `yaml:"peers"`
	} `yaml:"consensus"`
}

func LoadConfig(filePath string) (*Config, error) {
	config := &Config{}
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}

	return config, nil
}

func InitConfig() *Config {
	config, err := LoadConfig("configs/config.yaml")
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	return config
}

// PeerIDs 共识节点集合 (含本节点)
func (c *Config) PeerIDs() []string {
	ids := make([]string, 0, len(c.Consensus.Peers))
	for _, peer := range c.Consensus.Peers {
		ids = append(ids, peer.ID)
	}
	return ids
}

// PeerAddrs 对端ID到ws地址的映射 (不含本节点)
func (c *Config) PeerAddrs() map[string]string {
	addrs := make(map[string]string)
	for _, peer := range c.Consensus.Peers {
		if peer.ID != c.Node.ID && peer.Addr != "" {
			addrs[peer.ID] = peer.Addr
		}
	}
	return addrs
}
