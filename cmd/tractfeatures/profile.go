package main

import (
	"os"
	"runtime"
	"runtime/pprof"

	"go.uber.org/zap"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/logger"
)

// profiler writes CPU and heap profiles around one job
type profiler struct {
	cpuFile string
	memFile string
	cpu     *os.File
}

func (p *profiler) start() error {
	if p.cpuFile == "" {
		return nil
	}
	f, err := os.Create(p.cpuFile)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create CPU profile").WithDetail("path", p.cpuFile)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to start CPU profile")
	}
	p.cpu = f
	return nil
}

func (p *profiler) stop() {
	log := logger.Get()
	if p.cpu != nil {
		pprof.StopCPUProfile()
		if err := p.cpu.Close(); err != nil {
			log.Warn("failed to close CPU profile", zap.Error(err))
		}
		log.Info("wrote CPU profile", zap.String("path", p.cpuFile))
		p.cpu = nil
	}
	if p.memFile == "" {
		return
	}
	f, err := os.Create(p.memFile)
	if err != nil {
		log.Warn("failed to create memory profile", zap.String("path", p.memFile), zap.Error(err))
		return
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Warn("failed to write memory profile", zap.Error(err))
		return
	}
	log.Info("wrote memory profile", zap.String("path", p.memFile))
}
