package rangesync

import "github.com/sirupsen/logrus"

var log = logrus.WithField("prefix", "rangesync")
