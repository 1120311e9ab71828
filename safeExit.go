package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var SafeExitInst *SafeExit

func InitSafeExit() {
	SafeExitInst = newSafeExit()
	go SafeExitInst.ListenSignal()
}

// SafeExit 在收到退出信号时按注册的逆序执行清理函数
type SafeExit struct {
	funcs []func()
	mu    sync.Mutex
	once  sync.Once
	done  chan struct{}
}

func newSafeExit() *SafeExit {
	return &SafeExit{done: make(chan struct{})}
}

func (s *SafeExit) Register(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.funcs = append(s.funcs, f)
}

// Done 在所有清理函数执行完成后关闭
func (s *SafeExit) Done() <-chan struct{} {
	return s.done
}

func (s *SafeExit) exit() {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for i := len(s.funcs) - 1; i >= 0; i-- {
			s.funcs[i]()
		}
		close(s.done)
	})
}

func (s *SafeExit) ListenSignal() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-sigs
	log.Infof("received signal %s, shutting down", sig)
	s.exit()
}
