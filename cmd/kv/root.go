package kv

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	cmdUtil "github.com/ValentinKolb/dRDB/cmd/util"
	"github.com/ValentinKolb/dRDB/rpc/common"
	"github.com/ValentinKolb/dRDB/rpc/serializer"
	"github.com/spf13/cobra"
)

var (
	// KeyValueCommands groups the client commands speaking to a node
	KeyValueCommands = &cobra.Command{
		Use:   "kv",
		Short: "Interact with a dRDB node",
		Long:  "Read, write and inspect documents on a running dRDB node.",
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)
	cmdUtil.SetupClientFlags(KeyValueCommands)

	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(deleteCmd)
	KeyValueCommands.AddCommand(rangeCmd)
	KeyValueCommands.AddCommand(lenCmd)
}

// sendMessage posts one message to the configured node and decodes the
// response. Endpoints are tried in order, with the configured retry count.
func sendMessage(msg *common.Message) (*common.Message, error) {
	conf := cmdUtil.GetClientConfig()
	s := serializer.NewJSONSerializer()

	raw, err := s.Serialize(*msg)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: time.Duration(conf.TimeoutSecond) * time.Second}

	var lastErr error
	for attempt := 0; attempt <= conf.RetryCount; attempt++ {
		for _, endpoint := range conf.Endpoints {
			resp, err := client.Post(endpoint+"/rdb", "application/json", bytes.NewReader(raw))
			if err != nil {
				lastErr = err
				continue
			}

			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				lastErr = err
				continue
			}

			var out common.Message
			if err := s.Deserialize(body, &out); err != nil {
				lastErr = err
				continue
			}
			if out.MsgType == common.MsgTError {
				return nil, fmt.Errorf("node error: %s", out.Err)
			}
			return &out, nil
		}
	}

	return nil, fmt.Errorf("all endpoints failed: %w", lastErr)
}
