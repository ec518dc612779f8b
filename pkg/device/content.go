package device

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/newtron-network/skilletloader/pkg/util"
)

// ContentTypes lists the dynamic content types accepted by the upgrade commands.
var ContentTypes = []string{"content", "anti-virus", "wildfire", "global-protect-client"}

// ValidContentType reports whether t is a known dynamic content type.
func ValidContentType(t string) bool {
	for _, c := range ContentTypes {
		if c == t {
			return true
		}
	}
	return false
}

// contentVersion is a "NNNN-NNNN" dynamic content version.
type contentVersion struct {
	raw          string
	major, minor int
	current      bool
}

func parseContentVersion(s string) (contentVersion, bool) {
	first, second, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return contentVersion{}, false
	}
	major, err := strconv.Atoi(first)
	if err != nil {
		return contentVersion{}, false
	}
	minor, err := strconv.Atoi(second)
	if err != nil {
		return contentVersion{}, false
	}
	return contentVersion{raw: strings.TrimSpace(s), major: major, minor: minor}, true
}

func (v contentVersion) newerThan(o contentVersion) bool {
	if v.major != o.major {
		return v.major > o.major
	}
	return v.minor > o.minor
}

// LatestContent checks for available content of contentType and returns the
// highest version. It returns "" when that version is already installed.
func LatestContent(ctx context.Context, dev Device, contentType string) (string, error) {
	if !ValidContentType(contentType) {
		return "", fmt.Errorf("invalid content type %q", contentType)
	}
	cmd := fmt.Sprintf("<request><%s><upgrade><check/></upgrade></%s></request>", contentType, contentType)
	out, err := dev.Execute(ctx, &Request{Kind: KindOp, Cmd: cmd})
	if err != nil {
		return "", fmt.Errorf("checking %s updates: %w", contentType, err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(out); err != nil {
		return "", fmt.Errorf("parsing %s update check: %w", contentType, err)
	}

	var latest contentVersion
	found := false
	for _, entry := range doc.FindElements("//entry") {
		vEl := entry.FindElement("version")
		if vEl == nil {
			continue
		}
		v, ok := parseContentVersion(vEl.Text())
		if !ok {
			continue
		}
		if cEl := entry.FindElement("current"); cEl != nil {
			v.current = strings.TrimSpace(cEl.Text()) == "yes"
		}
		if !found || v.newerThan(latest) {
			latest = v
			found = true
		}
	}

	if !found || latest.current {
		return "", nil
	}
	return latest.raw, nil
}

// JobID extracts the job id from an op or commit result, or "" when the
// result carries none.
func JobID(result string) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(result); err != nil {
		return ""
	}
	if el := doc.FindElement("//job"); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

// UpdateContent downloads and installs the latest dynamic content of
// contentType, waiting for each job to finish.
func UpdateContent(ctx context.Context, dev Device, contentType string, opts PollOptions) error {
	log := util.WithDevice(dev.Name()).WithField("content_type", contentType)

	version, err := LatestContent(ctx, dev, contentType)
	if err != nil {
		return err
	}
	if version == "" {
		log.Info("Latest content version is already installed")
		return nil
	}

	log.Infof("Downloading %s version %s", contentType, version)
	download := fmt.Sprintf("<request><%s><upgrade><download><latest/></download></upgrade></%s></request>", contentType, contentType)
	if err := runJob(ctx, dev, download, opts); err != nil {
		return fmt.Errorf("could not download dynamic content: %w", err)
	}

	log.Infof("Installing %s version %s", contentType, version)
	install := fmt.Sprintf("<request><%s><upgrade><install><version>latest</version><commit>no</commit></install></upgrade></%s></request>", contentType, contentType)
	if err := runJob(ctx, dev, install, opts); err != nil {
		return fmt.Errorf("could not install dynamic content: %w", err)
	}
	return nil
}

// runJob issues an op command and, if it returns a job id, waits for it.
func runJob(ctx context.Context, dev Device, cmd string, opts PollOptions) error {
	out, err := dev.Execute(ctx, &Request{Kind: KindOp, Cmd: cmd})
	if err != nil {
		return err
	}
	id := JobID(out)
	if id == "" {
		util.WithDevice(dev.Name()).Info("No job returned to track")
		return nil
	}
	ok, err := WaitForJob(ctx, dev, id, opts)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job %s did not finish", id)
	}
	return nil
}
