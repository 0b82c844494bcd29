package reclass

import "github.com/reclass-go/reclass/log"

// warnClassNotFound emits the class_notfound tolerance warning (spec.md
// §4.6 "ignore_class_notfound_warning").
func warnClassNotFound(name, environment string) {
	log.WARN("class %q not found in environment %q, ignoring", name, environment)
}
