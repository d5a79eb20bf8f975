package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"assistedvoice/audio"
	"assistedvoice/capture"
	"assistedvoice/config"
	"assistedvoice/log"
)

var version = "dev"

func main() {
	serverFlag := flag.String("server", "", "backend URL (overrides config)")
	configFlag := flag.String("config", "", "path to config.toml")
	modeFlag := flag.String("mode", "", "capture mode: ptt, continuous, smart")
	modelFlag := flag.String("model", "", "model to request on connect")
	deviceFlag := flag.String("device", "", "capture device name substring")
	setupFlag := flag.Bool("setup", false, "pick the capture device interactively")
	noTTSFlag := flag.Bool("no-tts", false, "disable speech synthesis")
	historyFlag := flag.String("history", "", "conversation history directory")
	logPathFlag := flag.String("logpath", "", "log directory")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println("assistedvoice", version)
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *serverFlag != "" {
		cfg.Server = *serverFlag
	}
	if *modeFlag != "" {
		cfg.Mode = *modeFlag
	}
	if *modelFlag != "" {
		cfg.Model = *modelFlag
	}
	if *noTTSFlag {
		cfg.TTS.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logDir, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not resolve log dir: %v\n", err)
	} else {
		log.SetDir(logDir)
		if err := log.Init(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
		}
	}
	defer log.Close()

	historyDir := *historyFlag
	if historyDir == "" {
		if base, err := os.UserConfigDir(); err == nil {
			historyDir = filepath.Join(base, "assistedvoice", "history")
		} else {
			historyDir = "history"
		}
	}

	audioCtx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		os.Exit(1)
	}
	defer audioCtx.Close()

	var device *audio.DeviceInfo
	switch {
	case *deviceFlag != "":
		device, err = audio.FindDevice(audioCtx, *deviceFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case cfg.Device != "":
		if device, err = audio.FindDevice(audioCtx, cfg.Device); err != nil {
			log.Warnf("Configured device: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: %v, using default\n", err)
		}
	case *setupFlag:
		if device, err = audio.SelectDevice(audioCtx); err != nil {
			log.Warnf("Device selection failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v, using default\n", err)
		}
	}

	app, err := NewApp(cfg, audioCtx, device, historyDir)
	if err != nil {
		log.Errorf("init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	mode, _ := capture.ParseMode(cfg.Mode)
	p := NewTUIProgram(app, mode, cfg.Model)
	app.AttachUI(p)
	app.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	app.Shutdown()
}
