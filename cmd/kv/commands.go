package kv

import (
	"fmt"

	"github.com/ValentinKolb/dRDB/lib/protocol"
	"github.com/ValentinKolb/dRDB/lib/region"
	"github.com/ValentinKolb/dRDB/rpc/common"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Read a single document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := sendMessage(common.NewPointReadRequest(args[0]))
			if err != nil {
				return err
			}
			if !resp.Ok {
				fmt.Println("(not found)")
				return nil
			}
			fmt.Println(string(resp.Value))
			return nil
		},
	}

	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Store a document under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := sendMessage(common.NewPointWriteRequest(args[0], []byte(args[1])))
			if err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete [key]",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := sendMessage(common.NewPointDeleteRequest(args[0]))
			if err != nil {
				return err
			}
			wr, err := resp.ToWriteResponse()
			if err != nil {
				return err
			}
			if wr.Variant.(protocol.PointDeleteResponse).Result == protocol.DeleteMissing {
				fmt.Println("(not found)")
			} else {
				fmt.Println("ok")
			}
			return nil
		},
	}

	rangeCmd = &cobra.Command{
		Use:   "range [from] [to]",
		Short: "Scan a key range",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			maximum, _ := cmd.Flags().GetInt("max")

			req, err := common.NewRangeReadRequest(protocol.RangeRead{
				KeyRange: region.NewKeyRange(args[0], args[1]),
				Maximum:  maximum,
			})
			if err != nil {
				return err
			}

			resp, err := sendMessage(req)
			if err != nil {
				return err
			}
			rr, err := resp.ToReadResponse()
			if err != nil {
				return err
			}

			got := rr.Variant.(protocol.RangeReadResponse)
			if got.Result.Type == protocol.ResultError {
				return fmt.Errorf("query failed: %s", got.Result.Err.Msg)
			}
			for _, row := range got.Result.Stream {
				fmt.Printf("%s\t%v\n", row.Key, row.Value)
			}
			if got.Truncated {
				fmt.Printf("(truncated, considered up to %q)\n", got.LastConsideredKey)
			}
			return nil
		},
	}

	lenCmd = &cobra.Command{
		Use:   "len [from] [to]",
		Short: "Count documents in a key range",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := common.NewRangeReadRequest(protocol.RangeRead{
				KeyRange: region.NewKeyRange(args[0], args[1]),
				Terminal: &protocol.Terminal{Type: protocol.TerminalLength},
			})
			if err != nil {
				return err
			}

			resp, err := sendMessage(req)
			if err != nil {
				return err
			}
			rr, err := resp.ToReadResponse()
			if err != nil {
				return err
			}

			got := rr.Variant.(protocol.RangeReadResponse)
			fmt.Println(got.Result.Length)
			return nil
		},
	}
)

func init() {
	rangeCmd.Flags().Int("max", 100, "Page size per hash shard")
}
