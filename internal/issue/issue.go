// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	ContainerEngineNotFoundId
	ResolutionFailedId
	InstallationFailedId
	ProvisioningFailedId
	BinaryNotLinuxId
	SmokeTestFailedId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	extLinks []HttpLink  // install guides and upstream docs worth reading next
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	var extraMd strings.Builder
	if len(i.extLinks) > 0 {
		extraMd.WriteString("\n\n## See also:\n")
		for _, link := range i.extLinks {
			extraMd.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(string(i.mdMsg)+extraMd.String(), stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The sleapenv configuration could not be read or did not match the schema.

## Search locations (in order of precedence):
1. The file given with '--config'
2. '$XDG_CONFIG_HOME/sleapenv/config.cue'
3. './sleapenv.cue'

## Things you can try:
- Print the effective configuration:
~~~
$ sleapenv config show
~~~
- Regenerate a default configuration file:
~~~
$ sleapenv config init
~~~`,
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# No container engine found!

Building and running the environment needs Docker or Podman.

## Things you can try:
- Install Docker or Podman and make sure the daemon/socket is reachable
- Select the engine explicitly:
~~~
$ sleapenv --engine podman build
~~~`,
		extLinks: []HttpLink{"https://docs.docker.com/engine/install/", "https://podman.io/docs/installation"},
	}

	resolutionFailedIssue = &Issue{
		id: ResolutionFailedId,
		mdMsg: `
# Could not resolve a build input!

Either the base image reference or the remote toolkit source could not be reached.
Nothing was built.

## Things you can try:
- Check the variant's 'base.registry' and 'base.tag' values
- Log in to the registry if the image is private:
~~~
$ docker login <registry>
~~~
- Check that the toolkit 'remote.ref' exists on the remote
- Skip the registry lookup and pin by tag only:
~~~
$ sleapenv build --offline
~~~`,
	}

	installationFailedIssue = &Issue{
		id: InstallationFailedId,
		mdMsg: `
# Installation failed!

A native package or the toolkit itself could not be installed. The build stopped at
the failing step; no partial image was tagged.

## Things you can try:
- Check that every name under 'packages.required' exists in the base image's distribution
- For a local toolkit source, make sure the tree holds 'pyproject.toml', 'setup.py' or 'setup.cfg'
- Re-run with '--verbose' to see the package manager output`,
	}

	provisioningFailedIssue = &Issue{
		id: ProvisioningFailedId,
		mdMsg: `
# Dataset provisioning failed!

The dataset archive could not be downloaded, its destination could not be created,
or extraction failed. Extracted files are only published after a complete extraction.

## Things you can try:
- Check that 'dataset.url' is reachable from inside the build
- Make sure no regular file sits at 'dataset.dest' or one of its parents
- For 's3://' URLs, export 'AWS_ACCESS_KEY_ID' and 'AWS_SECRET_ACCESS_KEY'`,
	}

	binaryNotLinuxIssue = &Issue{
		id: BinaryNotLinuxId,
		mdMsg: `
# No Linux sleapenv binary for the image!

The image runs each provisioning step through a copy of sleapenv, which must be a
Linux build.

## Things you can try:
- Cross-compile and point the build at it:
~~~
$ GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o sleapenv-linux .
$ sleapenv build --binary ./sleapenv-linux
~~~`,
	}

	smokeTestFailedIssue = &Issue{
		id: SmokeTestFailedId,
		mdMsg: `
# Smoke test failed!

The toolkit command exited with a non-zero status inside the built image.

## Things you can try:
- Open an interactive session and run the command by hand:
~~~
$ sleapenv run
~~~
- Check that the GPU is visible inside the container ('nvidia-smi')`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		resolutionFailedIssue.Id():        resolutionFailedIssue,
		installationFailedIssue.Id():      installationFailedIssue,
		provisioningFailedIssue.Id():      provisioningFailedIssue,
		binaryNotLinuxIssue.Id():          binaryNotLinuxIssue,
		smokeTestFailedIssue.Id():         smokeTestFailedIssue,
	}
)

// Values returns every catalog issue ordered by id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return cmp.Compare(a.id, b.id)
	})
}

func Get(id Id) *Issue {
	return issues[id]
}
