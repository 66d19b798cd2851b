package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ResolveFields 提供 url/key/结果字段，供缓存解析日志复用。
func ResolveFields(url, key, result string) logrus.Fields {
	return logrus.Fields{
		"action": "resolve",
		"url":    url,
		"key":    key,
		"result": result,
	}
}

// SizeFields 描述缓存容量状态。
func SizeFields(action string, trackedBytes, maxBytes int64) logrus.Fields {
	return logrus.Fields{
		"action":        action,
		"tracked_bytes": trackedBytes,
		"max_bytes":     maxBytes,
	}
}
