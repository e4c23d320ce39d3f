package conf

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultClasses are the labels of the bundled brain tumor model, by output index.
var DefaultClasses = []string{"Glioma Tumor", "Meningioma Tumor", "No Tumor", "Pituitary Tumor"}

// DefaultAllowedExtensions lists the accepted upload extensions.
var DefaultAllowedExtensions = []string{"png", "jpg", "jpeg", "gif", "bmp", "tiff"}

// DefaultMaxUploadSize caps an uploaded image at 16 MiB.
const DefaultMaxUploadSize int64 = 16 * 1024 * 1024

// setDefaultConfig applies defaults to the global viper instance.
func setDefaultConfig() {
	setDefaultsOn(viper.GetViper())
}

func setDefaultsOn(v *viper.Viper) {
	v.SetDefault("main.profile", ProfileDevelopment)
	v.SetDefault("main.debug", false)
	v.SetDefault("main.secretkey", "")

	v.SetDefault("database.url", "sqlite:///brain_tumor.db")
	v.SetDefault("database.maxopenconns", 10)
	v.SetDefault("database.maxidleconns", 5)
	v.SetDefault("database.connmaxlifetime", time.Hour)
	v.SetDefault("database.slowquerythreshold", 200*time.Millisecond)

	v.SetDefault("upload.dir", "static/uploads")
	v.SetDefault("upload.maxsize", DefaultMaxUploadSize)
	v.SetDefault("upload.allowedextensions", DefaultAllowedExtensions)

	v.SetDefault("model.path", "models/brain_tumor_model.tflite")
	v.SetDefault("model.imagesize", 224)
	v.SetDefault("model.classes", DefaultClasses)
	v.SetDefault("model.threads", 0)
	v.SetDefault("model.usexnnpack", false)
	v.SetDefault("model.outputs", "auto")
	v.SetDefault("model.onnxlib", "")

	v.SetDefault("webserver.listen", ":5000")
	v.SetDefault("webserver.port", 0)
	v.SetDefault("webserver.autotls", false)
	v.SetDefault("webserver.host", "")
	v.SetDefault("webserver.ratelimit", 0.0)
	v.SetDefault("webserver.corsorigins", []string{})
	v.SetDefault("webserver.trustedproxies", []string{})
	v.SetDefault("webserver.readtimeout", 30*time.Second)

	v.SetDefault("telemetry.enabled", true)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "braintumor/predictions")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.clientid", "braintumor-go")
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", true)
	v.SetDefault("logging.file_output.path", "logs/braintumor.log")
	v.SetDefault("logging.file_output.level", "info")
}
