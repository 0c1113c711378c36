package cron

import (
	"Aorko/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine      *cron.Cron
	archiveJob  *job.MessageArchiveJob
	archiveSpec string
}

func NewCronManager(archiveJob *job.MessageArchiveJob, archiveSpec string) *Manager {
	return &Manager{
		// 同一进程内上一轮还没跑完时跳过本轮
		engine:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		archiveJob:  archiveJob,
		archiveSpec: archiveSpec,
	}
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	if _, err := s.engine.AddJob(s.archiveSpec, s.archiveJob); err != nil {
		return err
	}
	return nil
}

func (s *Manager) Start() {
	log.Info("Cron 定时任务引擎启动")
	s.engine.Start()
}

func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	s.engine.Stop()
}
