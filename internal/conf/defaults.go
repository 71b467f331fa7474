// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// DefaultWatchedTriggers are the wake word and alarming sound classes
// watched out of the box.
var DefaultWatchedTriggers = []string{"help", "gunshot", "screaming", "glass", "smoke"}

// setDefaultConfig registers default values for every key.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "hearken")
	viper.SetDefault("main.log.defaultlevel", "info")
	viper.SetDefault("main.log.timezone", "Local")
	viper.SetDefault("main.log.console.enabled", true)
	viper.SetDefault("main.log.console.level", "info")
	viper.SetDefault("main.log.fileoutput.enabled", false)
	viper.SetDefault("main.log.fileoutput.path", "logs/hearken.log")
	viper.SetDefault("main.log.fileoutput.level", "info")

	viper.SetDefault("audio.source", "sysdefault")
	viper.SetDefault("audio.backend", "")
	viper.SetDefault("audio.samplerate", 16000)
	viper.SetDefault("audio.framemillis", 100)
	viper.SetDefault("audio.gain", 0.0)
	viper.SetDefault("audio.synthetic.signal", "silence")
	viper.SetDefault("audio.synthetic.amplitude", 0.0)
	viper.SetDefault("audio.synthetic.frequency", 440.0)

	viper.SetDefault("buffer.durationseconds", 30)
	viper.SetDefault("buffer.snapshotseconds", 5)

	viper.SetDefault("trigger.sensitivity", 0.6)
	viper.SetDefault("trigger.watched", DefaultWatchedTriggers)
	viper.SetDefault("trigger.windowmillis", 1000)
	viper.SetDefault("trigger.hopmillis", 500)
	viper.SetDefault("trigger.cooldownseconds", 5)
	viper.SetDefault("trigger.smoothinggap", 0.3)
	viper.SetDefault("trigger.classifier", "rules")
	viper.SetDefault("trigger.transcriber", "none")
	viper.SetDefault("trigger.boost.base", 0.6)
	viper.SetDefault("trigger.boost.step", 0.05)
	viper.SetDefault("trigger.boost.cap", 0.9)
	viper.SetDefault("trigger.lexical.phoneticthreshold", 0.70)
	viper.SetDefault("trigger.lexical.fuzzythreshold", 0.85)
	viper.SetDefault("trigger.yamnet.modelpath", "model/yamnet.tflite")
	viper.SetDefault("trigger.yamnet.labelpath", "model/yamnet_class_map.csv")
	viper.SetDefault("trigger.yamnet.threads", 0)
	viper.SetDefault("trigger.whisper.modelpath", "model/ggml-base.en.bin")
	viper.SetDefault("trigger.whisper.language", "en")

	viper.SetDefault("learning.intervalseconds", 300)
	viper.SetDefault("learning.recentlimit", 100)
	viper.SetDefault("learning.commonwords", 50)
	viper.SetDefault("learning.corpuslimit", 1000)
	viper.SetDefault("learning.inboxsize", 256)

	viper.SetDefault("health.intervalseconds", 120)
	viper.SetDefault("health.autofix", true)
	viper.SetDefault("health.history", 10)
	viper.SetDefault("health.errorthreshold", 10)
	viper.SetDefault("health.cputhreshold", 90.0)
	viper.SetDefault("health.memorythreshold", 90.0)
	viper.SetDefault("health.diskthreshold", 95.0)
	viper.SetDefault("health.diskpath", ".")
	viper.SetDefault("health.retention.systemlogs", 1000)
	viper.SetDefault("health.retention.performancemetrics", 500)
	viper.SetDefault("health.retention.detections", 0)

	viper.SetDefault("output.timeoutseconds", 5)
	viper.SetDefault("output.connectattempts", 3)
	viper.SetDefault("output.connectdelayseconds", 2)
	viper.SetDefault("output.lograte", 5.0)
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "hearken.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
	viper.SetDefault("output.mysql.database", "hearken")
	viper.SetDefault("output.queue.size", 512)
	viper.SetDefault("output.queue.workers", 1)
	viper.SetDefault("output.retry.maxretries", 3)
	viper.SetDefault("output.retry.initialdelayms", 500)
	viper.SetDefault("output.retry.maxdelayms", 10000)
	viper.SetDefault("output.retry.multiplier", 2.0)

	viper.SetDefault("notify.mqtt.enabled", false)
	viper.SetDefault("notify.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("notify.mqtt.topic", "hearken/detections")
	viper.SetDefault("notify.mqtt.clientid", "hearken")
	viper.SetDefault("notify.mqtt.retain", false)
	viper.SetDefault("notify.push.enabled", false)
	viper.SetDefault("notify.push.urls", []string{})
	viper.SetDefault("notify.push.timeoutseconds", 10)
	viper.SetDefault("notify.push.minconfidence", 0.0)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
}
