package config

import (
	"os"
	"strings"
	"time"

	"Nightjar/report"
	"Nightjar/session"
	"Nightjar/yt"

	"github.com/Strum355/log"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func InitConfig() {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, proceeding with defaults.")
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	initDefaults()
	viper.AutomaticEnv()
}

// Session builds the playback settings. Chimes whose file is missing are left out.
func Session() session.Config {
	return session.Config{
		DisconnectAfter:    viper.GetDuration("player.disconnect_after"),
		NowPlayingInterval: viper.GetDuration("player.nowplaying_interval"),
		MaxSkips:           viper.GetInt("player.max_skips"),
		ConnectSound:       soundFile("sounds.connect"),
		DisconnectSound:    soundFile("sounds.disconnect"),
		Theme:              viper.GetInt("theme"),
	}
}

func Report() report.Config {
	return report.Config{
		Theme:     viper.GetInt("theme"),
		Cooldown:  viper.GetDuration("errors.report_cooldown"),
		MaxErrors: viper.GetInt("errors.max"),
		Window:    viper.GetDuration("errors.window"),
	}
}

func Cache() yt.Options {
	return yt.Options{
		CacheDir: viper.GetString("cache.dir"),
		MetaTTL:  time.Duration(viper.GetInt("cache.youtube")) * time.Second,
		AudioTTL: time.Duration(viper.GetInt("cache.audio")) * time.Second,
	}
}

func soundFile(key string) string {
	path := viper.GetString(key)
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		log.Warn("Sound " + path + " not found, playing without it")
		return ""
	}
	return path
}
