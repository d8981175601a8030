package bot

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// parseCommand 拆分命令名与参数，内容不以前缀开头时返回 false
func parseCommand(prefix, content string) (string, []string, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// decodeArgs 按位置参数名把参数解码到 out，多余参数报错
func decodeArgs(names []string, args []string, out interface{}) error {
	if len(args) > len(names) {
		return fmt.Errorf("too many arguments, expected at most %d", len(names))
	}
	values := make(map[string]interface{}, len(args))
	for i, arg := range args {
		values[names[i]] = arg
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(values)
}

type aliasArgs struct {
	Alias string `mapstructure:"alias"`
}

type limitArgs struct {
	Limit int `mapstructure:"limit"`
}
