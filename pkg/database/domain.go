package database

import "time"

// RedisConnection definition redis setting.
// Addr set = standalone, otherwise sentinel (MasterName + SentinelAddrs)
type RedisConnection struct {
	Addr          string
	MasterName    string
	SentinelAddrs []string
	DB            int

	RetryCount    int
	RetryInterval time.Duration
}
