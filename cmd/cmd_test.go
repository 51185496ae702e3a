package cmd_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/respkit/cmd"
	"github.com/luma/respkit/protocol"
)

func run(args ...string) (string, error) {
	var out bytes.Buffer

	cmd.RootCmd.SetOut(&out)
	cmd.RootCmd.SetErr(&out)
	cmd.RootCmd.SetArgs(append(args, "--log-level", "error"))

	err := cmd.RootCmd.Execute()
	return out.String(), err
}

var tempDirs []string

func writeInput(content string) string {
	dir, err := os.MkdirTemp("", "respkit")
	Expect(err).To(Succeed())
	tempDirs = append(tempDirs, dir)

	path := filepath.Join(dir, "input.resp")
	Expect(os.WriteFile(path, []byte(content), 0600)).To(Succeed())

	return path
}

// decode runs the decode command with every flag spelled out, since flag
// values stick between runs.
func decode(path string, flags ...string) (string, error) {
	args := append([]string{"decode", "--chunk", "4096", "-o", "text", "--path", ""}, flags...)
	return run(append(args, path)...)
}

var _ = Describe("respkit", func() {
	AfterEach(func() {
		for _, dir := range tempDirs {
			Expect(os.RemoveAll(dir)).To(Succeed())
		}
		tempDirs = nil
	})

	Describe("gen man", func() {
		It("writes a page per command", func() {
			dir, err := os.MkdirTemp("", "respkit-man")
			Expect(err).To(Succeed())
			tempDirs = append(tempDirs, dir)

			out, err := run("gen", "man", "--dir", filepath.Join(dir, "man"), "--section", "1")
			Expect(err).To(Succeed())
			Expect(out).To(ContainSubstring("man pages to"))

			Expect(filepath.Join(dir, "man", "respkit.1")).To(BeAnExistingFile())
			Expect(filepath.Join(dir, "man", "respkit-decode.1")).To(BeAnExistingFile())
		})
	})

	Describe("pack", func() {
		It("prints the quoted command", func() {
			out, err := run("pack", "--quoted", "SET", "k", "v")
			Expect(err).To(Succeed())
			Expect(out).To(Equal(`"*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"` + "\n"))
		})
	})

	Describe("decode", func() {
		It("prints every reply as JSON", func() {
			path := writeInput("+OK\r\n*2\r\n:1\r\n$-1\r\n")

			out, err := decode(path, "--chunk", "3", "-o", "json")
			Expect(err).To(Succeed())

			lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
			Expect(lines).To(HaveLen(2))
			Expect(lines[0]).To(MatchJSON(`"OK"`))
			Expect(lines[1]).To(MatchJSON(`[1, null]`))
		})

		It("selects with a gjson path", func() {
			path := writeInput("%1\r\n+name\r\n+luma\r\n")

			out, err := decode(path, "--path", "name")
			Expect(err).To(Succeed())
			Expect(out).To(Equal("\"luma\"\n"))
		})

		It("fails on truncated input", func() {
			path := writeInput("$5\r\nhel")

			_, err := decode(path)
			Expect(err).To(MatchError(protocol.ErrNeedMoreData))
		})

		It("fails on malformed input", func() {
			path := writeInput(":1\r\n?\r\n")

			_, err := decode(path)
			Expect(err).To(MatchError(protocol.ErrProtocol))
		})
	})
})
