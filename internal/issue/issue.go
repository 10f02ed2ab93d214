// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

type Id int

const (
	RecipeNotFoundId Id = iota + 1
	RecipeInvalidId
	ContainerEngineNotFoundId
	BaseImageUnavailableId
	SystemPackageInstallFailedId
	ManagerInstallFailedId
	SourceCopyFailedId
	DependencyResolutionFailedId
	EntryPointLaunchFailedId
	ImageVerificationFailedId
	RuntimeEnvMissingId
	ConfigLoadFailedId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // links to the relevant upstream documentation
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the markdown message with glamour using the given style
// ("dark", "light", "notty", or a path to a JSON style file).
func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	recipeNotFoundIssue = &Issue{
		id: RecipeNotFoundId,
		mdMsg: `
# No recipe found!

launchpad looks for a ` + "`launchpad.cue`" + ` file in the project directory.

## Things you can try:
- Write the reference recipe next to your ` + "`pyproject.toml`" + `:
~~~
$ launchpad init
~~~

- Or point at another file or directory:
~~~
$ launchpad build --recipe ./deploy/launchpad.cue
~~~`,
	}

	recipeInvalidIssue = &Issue{
		id: RecipeInvalidId,
		mdMsg: `
# The recipe is invalid!

Every build must start from the same fixed inputs, so the recipe is checked
before any container engine is called.

## Common causes:
- The base image has no tag, or uses ` + "`latest`" + `. Pin an exact version such as ` + "`python:3.12.5`" + `.
- ` + "`env.PYTHONPATH`" + ` differs from ` + "`workdir`" + `. It is derived and may only restate the working directory.
- A runtime secret listed in ` + "`runtime.required_env`" + ` is also set in ` + "`env`" + `, which would bake it into the image.

## Things you can try:
~~~
$ launchpad plan
~~~`,
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# No container engine available!

Building and launching the service image requires Docker or Podman.

## Things you can try:
- Install Podman or Docker and make sure the daemon (or socket) is running
- Select an engine explicitly in your configuration:
~~~cue
container_engine: "docker"
~~~
- Check which engine launchpad resolved:
~~~
$ launchpad config show
~~~`,
		docLinks: []HttpLink{"https://docs.docker.com/engine/install/", "https://podman.io/docs/installation"},
	}

	baseImageUnavailableIssue = &Issue{
		id: BaseImageUnavailableId,
		mdMsg: `
# The base image could not be pulled!

The first step selects the pinned language runtime image. The registry did not
return it, so nothing was built.

## Things you can try:
- Check that the tag exists in the registry
- Log in to the registry if the image is private
- Check the network connection of the container engine
~~~
$ docker pull python:3.12.5
~~~`,
	}

	systemPackageInstallFailedIssue = &Issue{
		id: SystemPackageInstallFailedId,
		mdMsg: `
# System packages failed to install!

The package index update or the install of one of the requested OS packages
failed inside the base image.

## Things you can try:
- Check the package names in ` + "`system_packages`" + ` against the base image's distribution
- Remove version pins that the distribution no longer ships
- Retry when the package mirror is reachable again`,
	}

	managerInstallFailedIssue = &Issue{
		id: ManagerInstallFailedId,
		mdMsg: `
# The dependency manager failed to install!

` + "`pip install uv`" + ` failed inside the image.

## Things you can try:
- Check that ` + "`dependency_manager.version`" + ` is a released uv version
- Check that the package index is reachable from the build`,
		extLinks: []HttpLink{"https://docs.astral.sh/uv/getting-started/installation/"},
	}

	sourceCopyFailedIssue = &Issue{
		id: SourceCopyFailedId,
		mdMsg: `
# The project source could not be copied!

The source directory must exist and be readable, and it must contain the
server script named by ` + "`entrypoint`" + `.

## Things you can try:
- Check ` + "`source_dir`" + ` in the recipe; it resolves against the recipe's directory
- Check file permissions in the project tree`,
	}

	dependencyResolutionFailedIssue = &Issue{
		id: DependencyResolutionFailedId,
		mdMsg: `
# Dependencies could not be resolved!

Builds install exactly the set recorded in ` + "`uv.lock`" + `. The manifest or the
lock is missing, unreadable, or they disagree.

## Things you can try:
- Regenerate the lock after editing ` + "`pyproject.toml`" + `:
~~~
$ uv lock
~~~
- Inspect what launchpad resolves from the pair:
~~~
$ launchpad lock
~~~`,
		extLinks: []HttpLink{"https://docs.astral.sh/uv/concepts/projects/sync/"},
	}

	entryPointLaunchFailedIssue = &Issue{
		id: EntryPointLaunchFailedId,
		mdMsg: `
# The server failed to start!

The image was built, but ` + "`uv run server.py`" + ` exited or never opened its port.

## Things you can try:
- Run in the foreground to see the server's output:
~~~
$ launchpad launch
~~~
- Check that required runtime variables such as ` + "`TAVILY_API_KEY`" + ` are set
- Check that nothing else is bound to the published host port`,
	}

	imageVerificationFailedIssue = &Issue{
		id: ImageVerificationFailedId,
		mdMsg: `
# The built image does not match the recipe!

After a build, the image configuration is inspected: working directory,
environment, exposed port and default command must all match the recipe.
The image was removed.

## Things you can try:
- Check for a ` + "`.dockerignore`" + ` or engine settings that rewrite images
- Rebuild with verbose output:
~~~
$ launchpad build --verbose
~~~`,
	}

	runtimeEnvMissingIssue = &Issue{
		id: RuntimeEnvMissingId,
		mdMsg: `
# Required runtime variables are missing!

Secrets are never baked into the image; they are passed when the container
starts.

## Things you can try:
- Export the variable in your shell:
~~~
$ export TAVILY_API_KEY=...
~~~
- Or add it to the project's ` + "`.env`" + ` file, or pass ` + "`--env-file`" + ``,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Things you can try:
- Check the syntax of your config file
- Print the resolved configuration file path:
~~~
$ launchpad config path
~~~
- Remove the file to fall back to the defaults`,
		docLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

## Things you can try:
- Check that your user may talk to the container engine (e.g. membership in the ` + "`docker`" + ` group)
- Check read permissions on the project tree`,
	}

	issues = map[Id]*Issue{
		recipeNotFoundIssue.Id():             recipeNotFoundIssue,
		recipeInvalidIssue.Id():              recipeInvalidIssue,
		containerEngineNotFoundIssue.Id():    containerEngineNotFoundIssue,
		baseImageUnavailableIssue.Id():       baseImageUnavailableIssue,
		systemPackageInstallFailedIssue.Id(): systemPackageInstallFailedIssue,
		managerInstallFailedIssue.Id():       managerInstallFailedIssue,
		sourceCopyFailedIssue.Id():           sourceCopyFailedIssue,
		dependencyResolutionFailedIssue.Id(): dependencyResolutionFailedIssue,
		entryPointLaunchFailedIssue.Id():     entryPointLaunchFailedIssue,
		imageVerificationFailedIssue.Id():    imageVerificationFailedIssue,
		runtimeEnvMissingIssue.Id():          runtimeEnvMissingIssue,
		configLoadFailedIssue.Id():           configLoadFailedIssue,
		permissionDeniedIssue.Id():           permissionDeniedIssue,
	}
)

// Values returns every catalog entry ordered by id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return cmp.Compare(a.id, b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
